package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shopdash/internal/paging"

	"golang.org/x/sync/singleflight"
)

const DefaultFetchTimeout = 30 * time.Second

var (
	// ErrInitialLoad means nothing could be shown for the collection.
	ErrInitialLoad = errors.New("initial load failed")
	// ErrContinuation means a later page failed; earlier pages are still held.
	ErrContinuation = errors.New("pagination continuation failed")
)

type FetchFunc[T any] func(ctx context.Context, after *string) (*paging.Connection[T], error)

type options struct {
	maxAge       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
}

type Option func(*options)

// WithMaxAge drops held pages once the first page is older than d.
// Zero keeps them until Reset.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithFetchTimeout bounds a single shared fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{fetchTimeout: DefaultFetchTimeout, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Loader accumulates the pages of one logical collection.
type Loader[T any] struct {
	fetch FetchFunc[T]
	opts  options
	group singleflight.Group

	mu       sync.Mutex
	conn     paging.Connection[T]
	loaded   bool
	loadedAt time.Time
	pages    int
	gen      uint64
}

func NewLoader[T any](fetch FetchFunc[T], opts ...Option) *Loader[T] {
	return &Loader[T]{fetch: fetch, opts: buildOptions(opts)}
}

// Snapshot returns the accumulated connection and whether the first page
// has been loaded.
func (l *Loader[T]) Snapshot() (paging.Connection[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return paging.Merge(l.conn, nil), l.loaded
}

func (l *Loader[T]) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded && l.conn.PageInfo.HasNextPage && l.conn.PageInfo.EndCursor != nil
}

// Expired reports whether the held pages are past their max age.
func (l *Loader[T]) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiredLocked()
}

func (l *Loader[T]) expiredLocked() bool {
	return l.loaded && l.opts.maxAge > 0 && l.opts.now().Sub(l.loadedAt) >= l.opts.maxAge
}

// Load fetches the first page. Later calls return the held data until it
// expires, after which the collection starts over from the first page.
func (l *Loader[T]) Load(ctx context.Context) (paging.Connection[T], error) {
	l.mu.Lock()
	if l.expiredLocked() {
		l.resetLocked()
	}
	if l.loaded {
		snap := paging.Merge(l.conn, nil)
		l.mu.Unlock()
		return snap, nil
	}
	gen := l.gen
	l.mu.Unlock()

	err := l.shared(ctx, fmt.Sprintf("load:%d", gen), nil, func(page *paging.Connection[T]) {
		if l.gen == gen && !l.loaded {
			l.conn = paging.Merge(paging.Connection[T]{}, page)
			l.loaded = true
			l.loadedAt = l.opts.now()
			l.pages = 1
		}
	})
	if err != nil {
		return paging.Connection[T]{Edges: []paging.Edge[T]{}}, fmt.Errorf("%w: %w", ErrInitialLoad, err)
	}

	snap, _ := l.Snapshot()
	return snap, nil
}

// LoadMore fetches the page after the current end cursor and merges it in.
// Callers racing on the same cursor share one fetch. On failure the held
// pages are returned unchanged alongside an ErrContinuation error.
func (l *Loader[T]) LoadMore(ctx context.Context) (paging.Connection[T], error) {
	if l.Expired() {
		return l.Load(ctx)
	}
	snap, loaded := l.Snapshot()
	if !loaded {
		return l.Load(ctx)
	}
	if !snap.PageInfo.HasNextPage || snap.PageInfo.EndCursor == nil {
		return snap, nil
	}

	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	after := *snap.PageInfo.EndCursor
	err := l.shared(ctx, fmt.Sprintf("more:%d:%s", gen, after), &after, func(page *paging.Connection[T]) {
		end := l.conn.PageInfo.EndCursor
		if l.gen == gen && end != nil && *end == after {
			l.conn = paging.Merge(l.conn, page)
			l.pages++
		}
	})

	snap, _ = l.Snapshot()
	if err != nil {
		return snap, fmt.Errorf("%w: %w", ErrContinuation, err)
	}
	return snap, nil
}

// shared runs one fetch per key for all concurrent callers. The fetch is
// detached from the caller's cancellation and bounded by the fetch timeout;
// a cancelled caller stops waiting without failing the others. apply runs
// under the lock.
func (l *Loader[T]) shared(ctx context.Context, key string, after *string, apply func(*paging.Connection[T])) error {
	ch := l.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.fetchTimeout)
		defer cancel()

		var cursor *string
		if after != nil {
			c := *after
			cursor = &c
		}
		page, err := l.fetch(fctx, cursor)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		apply(page)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pages is the number of pages merged since the last Reset.
func (l *Loader[T]) Pages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages
}

// LoadPages loads pages until the collection is exhausted or maxPages pages
// are held. Pages already held count toward the limit.
func (l *Loader[T]) LoadPages(ctx context.Context, maxPages int) (paging.Connection[T], error) {
	snap, err := l.Load(ctx)
	if err != nil {
		return snap, err
	}
	for l.HasMore() && l.Pages() < maxPages {
		if snap, err = l.LoadMore(ctx); err != nil {
			return snap, err
		}
	}
	snap, _ = l.Snapshot()
	return snap, nil
}

// Reset drops the held pages. Fetches already in flight are discarded when
// they complete.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Loader[T]) resetLocked() {
	l.conn = paging.Connection[T]{}
	l.loaded = false
	l.loadedAt = time.Time{}
	l.pages = 0
	l.gen++
}
