package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/types"
)

type memState struct {
	contacts    map[int64]Account
	raw         map[int64]RawRecord
	groups      map[int64]Group
	nextContact int64
	nextRaw     int64
	nextGroup   int64
}

func (s *memState) clone() *memState {
	c := &memState{
		contacts:    make(map[int64]Account, len(s.contacts)),
		raw:         make(map[int64]RawRecord, len(s.raw)),
		groups:      make(map[int64]Group, len(s.groups)),
		nextContact: s.nextContact,
		nextRaw:     s.nextRaw,
		nextGroup:   s.nextGroup,
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	for k, v := range s.raw {
		c.raw[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	return c
}

// MemoryStore is a RecordStore held in process memory. A batch is applied to
// a private copy of the state which replaces the current state only when
// every operation succeeded.
type MemoryStore struct {
	mu             sync.RWMutex
	state          *memState
	defaultAccount Account
	onWrite        func()
}

// NewMemoryStore returns an empty store. Anonymous logical records are
// assigned defaultAccount.
func NewMemoryStore(defaultAccount Account) *MemoryStore {
	return &MemoryStore{
		state: &memState{
			contacts: make(map[int64]Account),
			raw:      make(map[int64]RawRecord),
			groups:   make(map[int64]Group),
		},
		defaultAccount: defaultAccount,
	}
}

// SetOnWrite registers fn to run after every committed write.
func (m *MemoryStore) SetOnWrite(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = fn
}

func (m *MemoryStore) notify() {
	m.mu.RLock()
	fn := m.onWrite
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// HasLogicalRecord implements Reader.
func (m *MemoryStore) HasLogicalRecord(ctx context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.state.contacts[id]
	return ok, nil
}

// LogicalIDs implements Reader.
func (m *MemoryStore) LogicalIDs(ctx context.Context) (*types.IDSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := types.NewIDSet()
	for id := range m.state.contacts {
		ids.Add(id)
	}
	return ids, nil
}

// Snapshot implements Reader.
func (m *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{IDs: types.NewIDSet(), Stamps: make([]Stamp, 0, len(m.state.raw))}
	for id := range m.state.contacts {
		snap.IDs.Add(id)
	}
	for _, r := range m.state.raw {
		snap.Stamps = append(snap.Stamps, Stamp{RawID: r.ID, LogicalID: r.LogicalID, Version: r.Version})
	}
	sort.Slice(snap.Stamps, func(i, j int) bool { return snap.Stamps[i].RawID < snap.Stamps[j].RawID })
	return snap, nil
}

// Records implements Reader. Records are ordered by raw id.
func (m *MemoryStore) Records(ctx context.Context, id int64) ([]RawRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.state.contacts[id]; !ok {
		return nil, fmt.Errorf("logical record %d: %w", id, ErrNotFound)
	}
	var out []RawRecord
	for _, r := range m.state.raw {
		if r.LogicalID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Account implements Reader.
func (m *MemoryStore) Account(ctx context.Context, id int64) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.state.contacts[id]
	if !ok {
		return Account{}, fmt.Errorf("logical record %d: %w", id, ErrNotFound)
	}
	return acc, nil
}

// Apply implements Writer.
func (m *MemoryStore) Apply(ctx context.Context, ops []Operation) (ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, err
	}

	m.mu.Lock()
	next := m.state.clone()
	result := ApplyResult{Created: make(map[int]int64)}

	for i, op := range ops {
		if err := m.applyOne(next, i, op, &result); err != nil {
			m.mu.Unlock()
			return ApplyResult{}, fmt.Errorf("operation %d (%s): %w", i, op.Kind, err)
		}
	}

	m.state = next
	m.mu.Unlock()

	m.notify()
	return result, nil
}

func (m *MemoryStore) applyOne(s *memState, index int, op Operation, result *ApplyResult) error {
	if err := op.Validate(); err != nil {
		return err
	}

	switch op.Kind {
	case OpCreateLogical:
		s.nextContact++
		acc := m.defaultAccount
		if op.Account != nil {
			acc = *op.Account
		}
		s.contacts[s.nextContact] = acc
		result.Created[index] = s.nextContact

	case OpInsertRaw:
		parent, err := op.Parent.resolve(result.Created)
		if err != nil {
			return err
		}
		if _, ok := s.contacts[parent]; !ok {
			return fmt.Errorf("logical record %d: %w", parent, ErrNotFound)
		}
		result.RawIDs = append(result.RawIDs, insertMemRaw(s, parent, op.StorageType, op.Columns))

	case OpUpdateRaw:
		sel := op.Selector
		if _, ok := s.contacts[sel.LogicalID]; !ok {
			return fmt.Errorf("logical record %d: %w", sel.LogicalID, ErrNotFound)
		}
		matched := 0
		for id, r := range s.raw {
			if !matches(r, sel) {
				continue
			}
			setColumns(&r, op.Columns)
			r.Version++
			s.raw[id] = r
			matched++
		}
		if matched == 0 && op.Upsert {
			result.RawIDs = append(result.RawIDs, insertMemRaw(s, sel.LogicalID, sel.StorageType, op.upsertColumns()))
		}

	case OpDeleteRawByType:
		for id, r := range s.raw {
			if r.LogicalID == op.LogicalID && r.StorageType == op.StorageType {
				delete(s.raw, id)
			}
		}
	}
	return nil
}

func insertMemRaw(s *memState, parent int64, storageType string, cols Columns) int64 {
	s.nextRaw++
	r := RawRecord{ID: s.nextRaw, LogicalID: parent, StorageType: storageType, Version: 1}
	setColumns(&r, cols)
	s.raw[r.ID] = r
	return r.ID
}

func matches(r RawRecord, sel Selector) bool {
	if r.LogicalID != sel.LogicalID || r.StorageType != sel.StorageType {
		return false
	}
	if sel.HasSubType() {
		return r.Get(sel.SubTypeColumn) == FormatValue(sel.SubTypeCode)
	}
	return true
}

func setColumns(r *RawRecord, cols Columns) {
	for name, v := range cols {
		switch name {
		case mapping.ColIsPrimary:
			r.IsPrimary = FormatValue(v) == "1"
		case mapping.ColIsSuperPrimary:
			r.IsSuperPrimary = FormatValue(v) == "1"
		default:
			for i, c := range mapping.DataColumns {
				if c == name {
					r.Data[i] = FormatValue(v)
				}
			}
		}
	}
}

// DeleteLogicalRecord implements Writer. Deleting a missing record is not
// an error.
func (m *MemoryStore) DeleteLogicalRecord(ctx context.Context, id int64) error {
	m.mu.Lock()
	next := m.state.clone()
	delete(next.contacts, id)
	for rid, r := range next.raw {
		if r.LogicalID == id {
			delete(next.raw, rid)
		}
	}
	m.state = next
	m.mu.Unlock()

	m.notify()
	return nil
}

// Groups implements GroupStore. Groups are ordered by id.
func (m *MemoryStore) Groups(ctx context.Context) ([]Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Group, 0, len(m.state.groups))
	for _, g := range m.state.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Group implements GroupStore.
func (m *MemoryStore) Group(ctx context.Context, id int64) (Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.state.groups[id]
	if !ok {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	return g, nil
}

// CreateGroup implements GroupStore. New groups are visible and not deleted.
func (m *MemoryStore) CreateGroup(ctx context.Context, title string, account Account) (int64, error) {
	m.mu.Lock()
	next := m.state.clone()
	next.nextGroup++
	id := next.nextGroup
	next.groups[id] = Group{ID: id, Title: title, Account: account, Visible: true}
	m.state = next
	m.mu.Unlock()

	m.notify()
	return id, nil
}

// PutGroup stores g as is. Used to seed hidden or deleted groups.
func (m *MemoryStore) PutGroup(g Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.groups[g.ID] = g
	if g.ID > m.state.nextGroup {
		m.state.nextGroup = g.ID
	}
}

// Close implements RecordStore.
func (m *MemoryStore) Close() error {
	return nil
}
