// Package detector infers which logical records were added, removed or
// modified by comparing successive snapshots of the record store.
package detector

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/dbsmedya/gocontacts/internal/store"
	"github.com/dbsmedya/gocontacts/internal/types"
)

// Strategy selects how a cycle classifies differences.
type Strategy int

const (
	// OnChange trusts the logical id count: growth is reported as added
	// only, shrinkage as removed only, equal size as modified only.
	OnChange Strategy = iota
	// OnResume reports all three subsets.
	OnResume
)

func (s Strategy) String() string {
	if s == OnResume {
		return "resume"
	}
	return "change"
}

// ChangeSet holds the logical ids reported by one cycle. The three sets are
// pairwise disjoint.
type ChangeSet struct {
	Added    *types.IDSet
	Removed  *types.IDSet
	Modified *types.IDSet
}

func emptyChangeSet() ChangeSet {
	return ChangeSet{Added: types.NewIDSet(), Removed: types.NewIDSet(), Modified: types.NewIDSet()}
}

// IsEmpty reports whether the change set has no ids at all.
func (c ChangeSet) IsEmpty() bool {
	return c.Added.IsEmpty() && c.Removed.IsEmpty() && c.Modified.IsEmpty()
}

// Baseline is what the detector remembers between cycles.
type Baseline struct {
	IDs *types.IDSet
	// Owner maps raw record ids to their logical id.
	Owner map[int64]int64
	// Version maps raw record ids to their version stamp.
	Version map[int64]int64

	fingerprint uint64
}

// NewBaseline indexes a snapshot.
func NewBaseline(snap store.Snapshot) Baseline {
	b := Baseline{
		IDs:     snap.IDs,
		Owner:   make(map[int64]int64, len(snap.Stamps)),
		Version: make(map[int64]int64, len(snap.Stamps)),
	}
	if b.IDs == nil {
		b.IDs = types.NewIDSet()
	}
	for _, st := range snap.Stamps {
		b.Owner[st.RawID] = st.LogicalID
		b.Version[st.RawID] = st.Version
	}
	b.fingerprint = fingerprint(b)
	return b
}

// Fingerprint returns a hash of the baseline contents.
func (b Baseline) Fingerprint() uint64 {
	return b.fingerprint
}

func fingerprint(b Baseline) uint64 {
	h := xxhash.New()
	var buf [8]byte
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}

	for _, id := range b.IDs.Slice() {
		put(id)
	}
	put(-1)

	raws := make([]int64, 0, len(b.Version))
	for raw := range b.Version {
		raws = append(raws, raw)
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i] < raws[j] })
	for _, raw := range raws {
		put(raw)
		put(b.Owner[raw])
		put(b.Version[raw])
	}
	return h.Sum64()
}

// DiffOnChange applies the size heuristic. When the count is unchanged it
// reports modified ids only, restricted to ids present in both readings, so
// a removal paired with an addition goes unreported.
func DiffOnChange(old, now Baseline) ChangeSet {
	cs := emptyChangeSet()
	switch {
	case now.IDs.Len() > old.IDs.Len():
		cs.Added = now.IDs.Difference(old.IDs)
	case now.IDs.Len() < old.IDs.Len():
		cs.Removed = old.IDs.Difference(now.IDs)
	default:
		cs.Modified = modified(old, now, old.IDs.Intersect(now.IDs))
	}
	return cs
}

// DiffOnResume computes the full difference.
func DiffOnResume(old, now Baseline) ChangeSet {
	return ChangeSet{
		Added:    now.IDs.Difference(old.IDs),
		Removed:  old.IDs.Difference(now.IDs),
		Modified: modified(old, now, old.IDs.Intersect(now.IDs)),
	}
}

// modified returns the ids in common owning a raw record that is new, has a
// different version or has vanished. Ownership comes from the old reading,
// falling back to the new one for new raw records.
func modified(old, now Baseline, common *types.IDSet) *types.IDSet {
	out := types.NewIDSet()
	for raw, v := range now.Version {
		oldV, seen := old.Version[raw]
		if seen && oldV == v {
			continue
		}
		owner, ok := old.Owner[raw]
		if !ok {
			owner = now.Owner[raw]
		}
		if common.Contains(owner) {
			out.Add(owner)
		}
	}
	for raw, owner := range old.Owner {
		if _, still := now.Version[raw]; still {
			continue
		}
		if common.Contains(owner) {
			out.Add(owner)
		}
	}
	return out
}

// Cycle runs one detection step. The returned baseline always replaces the
// previous one.
func Cycle(strategy Strategy, old Baseline, snap store.Snapshot) (ChangeSet, Baseline) {
	now := NewBaseline(snap)
	if now.fingerprint == old.fingerprint && old.IDs != nil {
		return emptyChangeSet(), now
	}
	if strategy == OnResume {
		return DiffOnResume(old, now), now
	}
	return DiffOnChange(old, now), now
}
