// Package store defines the record store contract used by the contact core
// and provides an in-memory and a SQL implementation of it.
//
// A logical record (contact) owns typed raw records. Each raw record carries
// a version stamp that starts at 1 and increases on every update, which is
// what change detection compares.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/types"
)

var (
	// ErrNotFound is returned when a logical record, raw record or group
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownColumn is returned when an operation names a column outside
	// the fixed storage columns.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrBadReference is returned when a deferred reference does not point
	// at an earlier CreateLogicalRecord in the same batch.
	ErrBadReference = errors.New("bad back-reference")
)

// Account owns logical records and groups.
type Account struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RawRecord is one typed sub-row of a logical record.
type RawRecord struct {
	ID             int64
	LogicalID      int64
	StorageType    string
	Version        int64
	IsPrimary      bool
	IsSuperPrimary bool
	Data           [10]string
}

// Get returns the value of a storage column.
func (r RawRecord) Get(column string) string {
	for i, c := range mapping.DataColumns {
		if c == column {
			return r.Data[i]
		}
	}
	switch column {
	case mapping.ColIsPrimary:
		return boolText(r.IsPrimary)
	case mapping.ColIsSuperPrimary:
		return boolText(r.IsSuperPrimary)
	}
	return ""
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Stamp is the part of a raw record change detection looks at.
type Stamp struct {
	RawID     int64
	LogicalID int64
	Version   int64
}

// Snapshot is a consistent read of every logical id and raw record stamp.
type Snapshot struct {
	IDs    *types.IDSet
	Stamps []Stamp
}

// Group is a named label records can be members of.
type Group struct {
	ID      int64
	Title   string
	Account Account
	Deleted bool
	Visible bool
}

// ApplyResult reports the identifiers a batch created.
type ApplyResult struct {
	// Created maps the index of each CreateLogicalRecord operation to the
	// logical id it produced.
	Created map[int]int64
	// RawIDs lists inserted raw record ids in operation order.
	RawIDs []int64
}

// CreatedID returns the logical id produced by the operation at index.
func (r ApplyResult) CreatedID(index int) (int64, bool) {
	id, ok := r.Created[index]
	return id, ok
}

// Reader reads logical and raw records.
type Reader interface {
	HasLogicalRecord(ctx context.Context, id int64) (bool, error)
	LogicalIDs(ctx context.Context) (*types.IDSet, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Records(ctx context.Context, id int64) ([]RawRecord, error)
	Account(ctx context.Context, id int64) (Account, error)
}

// Writer applies changes. Apply is all-or-nothing.
type Writer interface {
	Apply(ctx context.Context, ops []Operation) (ApplyResult, error)
	DeleteLogicalRecord(ctx context.Context, id int64) error
}

// GroupStore manages groups.
type GroupStore interface {
	Groups(ctx context.Context) ([]Group, error)
	Group(ctx context.Context, id int64) (Group, error)
	CreateGroup(ctx context.Context, title string, account Account) (int64, error)
}

// RecordStore is the full contract.
type RecordStore interface {
	Reader
	Writer
	GroupStore
	Close() error
}

var allowedColumns = func() map[string]bool {
	m := map[string]bool{mapping.ColIsPrimary: true, mapping.ColIsSuperPrimary: true}
	for _, c := range mapping.DataColumns {
		m[c] = true
	}
	return m
}()

// ValidateColumns rejects columns outside the storage columns.
func ValidateColumns(cols Columns) error {
	for name := range cols {
		if !allowedColumns[name] {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
	}
	return nil
}
