package dispatch

import (
	"container/list"
	"reflect"

	"github.com/freshwatch/freshwatch/pkg/types"
)

// Comparable reports whether sub can be used as a set member. Pointers to
// zero-size types are refused: distinct ones may compare equal.
func Comparable(sub types.Subscriber) bool {
	if sub == nil {
		return false
	}
	t := reflect.TypeOf(sub)
	if t.Kind() == reflect.Pointer && t.Elem().Size() == 0 {
		return false
	}
	return t.Comparable()
}

// Set is an ordered, identity-keyed set of subscribers. The zero value is an
// empty set ready to use.
type Set struct {
	order *list.List
	index map[types.Subscriber]*list.Element
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{}
}

func (s *Set) init() {
	if s.index == nil {
		s.order = list.New()
		s.index = make(map[types.Subscriber]*list.Element)
	}
}

// Add inserts sub at the end. It returns false if sub was already present.
func (s *Set) Add(sub types.Subscriber) bool {
	s.init()
	if _, ok := s.index[sub]; ok {
		return false
	}
	s.index[sub] = s.order.PushBack(sub)
	return true
}

// Remove deletes sub. It returns false if sub was not present.
func (s *Set) Remove(sub types.Subscriber) bool {
	el, ok := s.index[sub]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.index, sub)
	return true
}

// Has reports membership.
func (s *Set) Has(sub types.Subscriber) bool {
	_, ok := s.index[sub]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.index) }

// List returns the members in insertion order.
func (s *Set) List() []types.Subscriber {
	if s.order == nil {
		return nil
	}
	out := make([]types.Subscriber, 0, len(s.index))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(types.Subscriber))
	}
	return out
}

// Drain removes and returns every member in insertion order.
func (s *Set) Drain() []types.Subscriber {
	out := s.List()
	s.order, s.index = nil, nil
	return out
}
