package paging

// Edge is one element of a cursor-paginated GraphQL connection.
type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

// PageInfo is the pagination frontier reported by the server.
// EndCursor is nil only when there is no next page or the page is empty.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Nodes unwraps edges into their nodes, keeping order.
func Nodes[T any](edges []Edge[T]) []T {
	out := make([]T, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Node)
	}
	return out
}
