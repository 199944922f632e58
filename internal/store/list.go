package store

import "sync"

// List holds one logically continuous collection built from independent
// paginated fetch responses. Page 1 (or a filter change) replaces the
// collection wholesale; later pages append only items whose identity key is
// not already held. All mutation goes through the methods below, so the
// collection has a single writer regardless of how many asynchronous
// sources trigger fetches.
//
// Every outbound fetch is tagged with a sequence id via BeginFetch; a
// response whose id is no longer the latest issued for this list is
// discarded, so a slow stale request can never overwrite fresher data.
type List[T any] struct {
	mu sync.Mutex

	keyOf func(T) string
	merge func(existing, incoming T) T

	items     []T
	total     int
	fetchErr  error
	filterSig string
	seq       uint64
}

// NewList creates a list keyed by identity function. merge may be nil; when
// set, it is applied whenever an incoming item's key is already held (used
// for the monotonic status merge on production orders).
func NewList[T any](keyOf func(T) string, merge func(existing, incoming T) T) *List[T] {
	return &List[T]{keyOf: keyOf, merge: merge}
}

// BeginFetch registers an outbound request for the given page and filter
// signature and returns the sequence id the response must present.
func (l *List[T]) BeginFetch(filterSig string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	if filterSig != l.filterSig {
		// Filter change: the next response replaces regardless of page.
		l.filterSig = filterSig
		l.items = nil
	}
	return l.seq
}

// ApplyPage merges a successful fetch response. It reports false when the
// response is stale (a newer fetch was issued) and was discarded.
func (l *List[T]) ApplyPage(seq uint64, page int, items []T, total int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq {
		return false
	}
	l.fetchErr = nil
	l.total = total

	if page <= 1 || l.items == nil {
		merged := make([]T, 0, len(items))
		held := make(map[string]T, len(l.items))
		if l.merge != nil {
			for _, it := range l.items {
				held[l.keyOf(it)] = it
			}
		}
		for _, it := range items {
			if l.merge != nil {
				if prev, ok := held[l.keyOf(it)]; ok {
					it = l.merge(prev, it)
				}
			}
			merged = append(merged, it)
		}
		l.items = merged
		return true
	}

	seen := make(map[string]struct{}, len(l.items))
	for _, it := range l.items {
		seen[l.keyOf(it)] = struct{}{}
	}
	for _, it := range items {
		if _, dup := seen[l.keyOf(it)]; dup {
			continue
		}
		seen[l.keyOf(it)] = struct{}{}
		l.items = append(l.items, it)
	}
	return true
}

// ApplyError records a failed fetch. A page-1 failure resets the collection
// to empty rather than retaining stale data; a load-more failure keeps what
// is already visible. Stale failures are discarded like stale successes.
func (l *List[T]) ApplyError(seq uint64, page int, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq {
		return false
	}
	l.fetchErr = err
	if page <= 1 {
		l.items = nil
		l.total = 0
	}
	return true
}

// UpdateWhere applies fn to every held item whose key matches, in place.
// Used for server-confirmed single-entity updates (push-confirmed status).
func (l *List[T]) UpdateWhere(key string, fn func(T) T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	updated := false
	for i := range l.items {
		if l.keyOf(l.items[i]) == key {
			l.items[i] = fn(l.items[i])
			updated = true
		}
	}
	return updated
}

// Get returns the held item for the key, if present.
func (l *List[T]) Get(key string) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if l.keyOf(it) == key {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Items returns a copy of the held collection.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *List[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetchErr
}

// HasMore reports whether more pages remain according to the latest total.
func (l *List[T]) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items) < l.total
}

// Len returns the held item count.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Reset clears the collection and forgets the filter signature.
func (l *List[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.total = 0
	l.fetchErr = nil
	l.filterSig = ""
	l.seq++
}
