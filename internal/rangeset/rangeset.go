// Package rangeset implements the range allocator of spec.md §4.2: a
// thread-safe, sorted, non-overlapping, coalesced list of closed [begin,end]
// id ranges supporting pop-smallest, push-with-coalesce, and size.
//
// The C original (caslist.c) represents this as a singly-linked list with
// one heap node per range. spec.md §9 flags that as cache-hostile and
// recommends a flat sorted vector instead, since the number of ranges stays
// small in steady state; this is that vector.
package rangeset

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
)

// Range is a closed interval of block ids, both ends inclusive.
type Range struct {
	Begin, End uint64
}

func (r Range) Len() uint64 { return r.End - r.Begin + 1 }

// Set is a mutex-guarded sorted list of non-overlapping, non-adjacent
// ranges. The zero Set is empty and ready to use.
type Set struct {
	mu     sync.Mutex
	ranges []Range
	size   uint64
}

// New builds a Set seeded with a single range [begin, end]. An empty set is
// created by passing begin == end == 0; begin == 0 with end > 0, or
// begin > end, is rejected.
func New(begin, end uint64) (*Set, error) {
	if begin == 0 && end == 0 {
		return &Set{}, nil
	}
	if begin == 0 && end > 0 {
		return nil, errors.New("rangeset: begin == 0 with end > 0 is invalid")
	}
	if begin > end {
		return nil, errors.Newf("rangeset: begin %d > end %d", begin, end)
	}
	return &Set{ranges: []Range{{Begin: begin, End: end}}, size: end - begin + 1}, nil
}

// Pop removes and returns the smallest id in the set. ok is false if the
// set is empty.
func (s *Set) Pop() (id uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ranges) == 0 {
		return 0, false
	}
	id = s.ranges[0].Begin
	s.ranges[0].Begin++
	if s.ranges[0].Begin > s.ranges[0].End {
		s.ranges = s.ranges[1:]
	}
	s.size--
	return id, true
}

// Push inserts id, extending and/or merging adjacent ranges as needed. It
// is a no-op (idempotent) if id is already covered by the set. Pushing 0 is
// a no-op: block id 0 is never stored in any range allocator (invariant 5).
func (s *Set) Push(id uint64) {
	if id == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := slices.BinarySearchFunc(s.ranges, id, func(r Range, v uint64) int {
		switch {
		case r.Begin < v:
			return -1
		case r.Begin > v:
			return 1
		default:
			return 0
		}
	})
	if found {
		return // id is exactly some range's Begin: already covered.
	}

	if i > 0 && s.ranges[i-1].End >= id {
		return // covered by the predecessor range.
	}

	mergeLeft := i > 0 && s.ranges[i-1].End+1 == id
	mergeRight := i < len(s.ranges) && s.ranges[i].Begin == id+1

	switch {
	case mergeLeft && mergeRight:
		s.ranges[i-1].End = s.ranges[i].End
		s.ranges = append(s.ranges[:i], s.ranges[i+1:]...)
	case mergeLeft:
		s.ranges[i-1].End = id
	case mergeRight:
		s.ranges[i].Begin = id
	default:
		s.ranges = append(s.ranges, Range{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = Range{Begin: id, End: id}
	}
	s.size++
}

// Size returns the total number of ids held across all ranges.
func (s *Set) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Free releases all range nodes, leaving the set empty.
func (s *Set) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = nil
	s.size = 0
}

// Ranges returns a copy of the current range list, sorted by Begin. It is
// meant for tests and introspection, not the hot path.
func (s *Set) Ranges() []Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}
