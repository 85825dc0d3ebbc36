package remote

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NotifyPair is the (input handle, CCC descriptor handle) tuple that together
// enable and deliver notifications for one report source. Immutable; equality
// is by both fields. Handle 0 is the "unset" sentinel, so a pair with either
// field zero is invalid and never enters an active set.
type NotifyPair struct {
	Input uint16
	CCC   uint16
}

func (p NotifyPair) Valid() bool {
	return p.Input != 0 && p.CCC != 0
}

func (p NotifyPair) String() string {
	return fmt.Sprintf("input=%d ccc=%d", p.Input, p.CCC)
}

// pairSet is an insertion-ordered, deduplicating set of valid NotifyPairs.
type pairSet struct {
	m *orderedmap.OrderedMap[NotifyPair, struct{}]
}

func newPairSet() *pairSet {
	return &pairSet{m: orderedmap.New[NotifyPair, struct{}]()}
}

// Add inserts p, returning true if it was new. Invalid and duplicate pairs
// are rejected (first-seen wins).
func (s *pairSet) Add(p NotifyPair) bool {
	if !p.Valid() {
		return false
	}
	if _, present := s.m.Get(p); present {
		return false
	}
	s.m.Set(p, struct{}{})
	return true
}

func (s *pairSet) Contains(p NotifyPair) bool {
	_, present := s.m.Get(p)
	return present
}

// ContainsInput reports whether any pair carries the given input handle.
func (s *pairSet) ContainsInput(input uint16) bool {
	for e := s.m.Oldest(); e != nil; e = e.Next() {
		if e.Key.Input == input {
			return true
		}
	}
	return false
}

func (s *pairSet) Len() int {
	return s.m.Len()
}

// Pairs returns the set in insertion order.
func (s *pairSet) Pairs() []NotifyPair {
	out := make([]NotifyPair, 0, s.m.Len())
	for e := s.m.Oldest(); e != nil; e = e.Next() {
		out = append(out, e.Key)
	}
	return out
}

// pairsEqual compares two ordered pair sequences element-wise.
func pairsEqual(a, b []NotifyPair) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
