package collection

import "sync"

const DefaultMaxEntries = 16

// Registry keeps one Loader per collection key, e.g. one per order date
// window. At most maxEntries loaders are held; the least recently used one
// is dropped to make room, and expired loaders are dropped on lookup.
type Registry[T any] struct {
	mu      sync.Mutex
	max     int
	opts    []Option
	tick    uint64
	loaders map[string]*registryEntry[T]
}

type registryEntry[T any] struct {
	loader *Loader[T]
	used   uint64
}

func NewRegistry[T any](maxEntries int, opts ...Option) *Registry[T] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Registry[T]{max: maxEntries, opts: opts, loaders: map[string]*registryEntry[T]{}}
}

// Loader returns the loader for key, creating it with fetch on first use.
func (r *Registry[T]) Loader(key string, fetch FetchFunc[T]) *Loader[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tick++

	for k, e := range r.loaders {
		if k != key && e.loader.Expired() {
			delete(r.loaders, k)
		}
	}

	if e, ok := r.loaders[key]; ok {
		e.used = r.tick
		return e.loader
	}

	for len(r.loaders) >= r.max {
		r.evictOldestLocked()
	}
	l := NewLoader(fetch, r.opts...)
	r.loaders[key] = &registryEntry[T]{loader: l, used: r.tick}
	return l
}

// Evicted loaders are not reset: a request still holding one keeps working.
func (r *Registry[T]) evictOldestLocked() {
	var (
		oldest string
		lowest uint64
		found  bool
	)
	for k, e := range r.loaders {
		if !found || e.used < lowest {
			oldest, lowest, found = k, e.used, true
		}
	}
	if found {
		delete(r.loaders, oldest)
	}
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loaders)
}

func (r *Registry[T]) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.loaders {
		e.loader.Reset()
	}
	r.loaders = map[string]*registryEntry[T]{}
}
