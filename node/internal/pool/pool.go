package pool

import "container/list"

// Member is what the pool needs to know about a pooled fetcher.
type Member interface {
	HasSubscribers() bool
	KillOnLoseSubscribers()
}

type entry[K comparable, M Member] struct {
	key    K
	member M
}

// Pool is an LRU-ordered map from K to M with a capacity. It is not safe for
// concurrent use; the registry guards it with its own lock.
type Pool[K comparable, M Member] struct {
	cap     int
	order   *list.List // front is most recently used
	entries map[K]*list.Element

	evicted uint64
	drained uint64
}

// New returns an empty pool holding at most capacity members. A capacity
// below one is treated as one.
func New[K comparable, M Member](capacity int) *Pool[K, M] {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool[K, M]{
		cap:     capacity,
		order:   list.New(),
		entries: make(map[K]*list.Element),
	}
}

// Push inserts m under key, or replaces the member and moves it to the most
// recently used position. It returns the members popped for capacity that
// have no subscribers; the caller must cancel them after releasing its locks.
func (p *Pool[K, M]) Push(key K, m M) (evicted []M) {
	if el, ok := p.entries[key]; ok {
		el.Value.(*entry[K, M]).member = m
		p.order.MoveToFront(el)
	} else {
		p.entries[key] = p.order.PushFront(&entry[K, M]{key: key, member: m})
	}
	return p.trim()
}

// Get returns the member for key without touching its position.
func (p *Pool[K, M]) Get(key K) (M, bool) {
	el, ok := p.entries[key]
	if !ok {
		var zero M
		return zero, false
	}
	return el.Value.(*entry[K, M]).member, true
}

// Remove deletes key and reports whether it was present.
func (p *Pool[K, M]) Remove(key K) bool {
	el, ok := p.entries[key]
	if !ok {
		return false
	}
	p.order.Remove(el)
	delete(p.entries, key)
	return true
}

// Len returns the number of members counting against capacity.
func (p *Pool[K, M]) Len() int { return len(p.entries) }

// Cap returns the capacity.
func (p *Pool[K, M]) Cap() int { return p.cap }

// SetCap changes the capacity and trims with the usual policy.
func (p *Pool[K, M]) SetCap(capacity int) (evicted []M) {
	if capacity < 1 {
		capacity = 1
	}
	p.cap = capacity
	return p.trim()
}

// Keys returns the keys from most to least recently used.
func (p *Pool[K, M]) Keys() []K {
	out := make([]K, 0, len(p.entries))
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[K, M]).key)
	}
	return out
}

// Evicted returns how many subscriber-less members were popped so far.
func (p *Pool[K, M]) Evicted() uint64 { return p.evicted }

// Drained returns how many subscribed members were popped and told to
// retire later.
func (p *Pool[K, M]) Drained() uint64 { return p.drained }

func (p *Pool[K, M]) trim() (evicted []M) {
	for len(p.entries) > p.cap {
		back := p.order.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry[K, M])
		p.order.Remove(back)
		delete(p.entries, e.key)

		if e.member.HasSubscribers() {
			e.member.KillOnLoseSubscribers()
			p.drained++
			continue
		}
		p.evicted++
		evicted = append(evicted, e.member)
	}
	return evicted
}
