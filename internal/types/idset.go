// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"github.com/RoaringBitmap/roaring/roaring64"
)

// IDSet is a set of positive record identifiers backed by a 64-bit roaring
// bitmap. Iteration order is always ascending.
type IDSet struct {
	bm *roaring64.Bitmap
}

// NewIDSet returns a set holding ids. Non-positive ids are ignored.
func NewIDSet(ids ...int64) *IDSet {
	s := &IDSet{bm: roaring64.New()}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *IDSet) bitmap() *roaring64.Bitmap {
	if s == nil || s.bm == nil {
		return roaring64.New()
	}
	return s.bm
}

// Add inserts id into the set.
func (s *IDSet) Add(id int64) {
	if id <= 0 {
		return
	}
	if s.bm == nil {
		s.bm = roaring64.New()
	}
	s.bm.Add(uint64(id))
}

// Contains reports whether id is in the set.
func (s *IDSet) Contains(id int64) bool {
	if id <= 0 {
		return false
	}
	return s.bitmap().Contains(uint64(id))
}

// Len returns the cardinality of the set.
func (s *IDSet) Len() int {
	return int(s.bitmap().GetCardinality())
}

// IsEmpty reports whether the set has no members.
func (s *IDSet) IsEmpty() bool {
	return s.bitmap().IsEmpty()
}

// Difference returns s minus other as a new set.
func (s *IDSet) Difference(other *IDSet) *IDSet {
	return &IDSet{bm: roaring64.AndNot(s.bitmap(), other.bitmap())}
}

// Intersect returns the members common to s and other as a new set.
func (s *IDSet) Intersect(other *IDSet) *IDSet {
	return &IDSet{bm: roaring64.And(s.bitmap(), other.bitmap())}
}

// Equal reports whether both sets hold the same members.
func (s *IDSet) Equal(other *IDSet) bool {
	return s.bitmap().Equals(other.bitmap())
}

// Clone returns an independent copy of the set.
func (s *IDSet) Clone() *IDSet {
	return &IDSet{bm: s.bitmap().Clone()}
}

// Slice returns the members in ascending order.
func (s *IDSet) Slice() []int64 {
	raw := s.bitmap().ToArray()
	ids := make([]int64, len(raw))
	for i, v := range raw {
		ids[i] = int64(v)
	}
	return ids
}

// Strings returns the members in ascending order in their external form.
func (s *IDSet) Strings() []string {
	ids := s.Slice()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = FormatID(id)
	}
	return out
}
