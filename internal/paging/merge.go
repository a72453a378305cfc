package paging

// Merge appends a freshly fetched page to a previously accumulated connection.
//
// Edges are deduplicated by cursor: a cursor keeps the position where it was
// first seen and the node from its last occurrence, so a re-fetched edge
// replaces stale data without reordering the list. The page's PageInfo wins
// since only the newest fetch knows the frontier.
//
// A nil page (failed or empty fetch) returns prev unchanged. Neither input
// is mutated.
func Merge[T any](prev Connection[T], page *Connection[T]) Connection[T] {
	if page == nil {
		edges := make([]Edge[T], len(prev.Edges))
		copy(edges, prev.Edges)
		return Connection[T]{
			Edges:    edges,
			PageInfo: clonePageInfo(prev.PageInfo),
		}
	}

	m := NewOrderedMap[string, Edge[T]](len(prev.Edges) + len(page.Edges))
	for _, e := range prev.Edges {
		m.Set(e.Cursor, e)
	}
	for _, e := range page.Edges {
		m.Set(e.Cursor, e)
	}

	return Connection[T]{
		Edges:    m.Values(),
		PageInfo: clonePageInfo(page.PageInfo),
	}
}

// Dedupe is Merge without a new page frontier: it collapses duplicate cursors
// in edges with the same first-position, last-value rule.
func Dedupe[T any](edges []Edge[T]) []Edge[T] {
	m := NewOrderedMap[string, Edge[T]](len(edges))
	for _, e := range edges {
		m.Set(e.Cursor, e)
	}
	return m.Values()
}

func clonePageInfo(p PageInfo) PageInfo {
	if p.EndCursor == nil {
		return p
	}
	c := *p.EndCursor
	return PageInfo{HasNextPage: p.HasNextPage, EndCursor: &c}
}
