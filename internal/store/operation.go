package store

import (
	"fmt"
	"sort"
	"strconv"
)

// OpKind discriminates Operation variants.
type OpKind int

const (
	OpCreateLogical OpKind = iota
	OpInsertRaw
	OpUpdateRaw
	OpDeleteRawByType
)

func (k OpKind) String() string {
	switch k {
	case OpCreateLogical:
		return "create_logical"
	case OpInsertRaw:
		return "insert_raw"
	case OpUpdateRaw:
		return "update_raw"
	case OpDeleteRawByType:
		return "delete_raw_by_type"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Columns holds column values of one raw record. Values are strings, ints
// or bools and are stored in text form.
type Columns map[string]interface{}

// Names returns the column names in sorted order.
func (c Columns) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Text returns the stored form of a column value.
func (c Columns) Text(name string) string {
	return FormatValue(c[name])
}

// FormatValue renders a column value in its stored text form.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return boolText(x)
	default:
		return fmt.Sprint(x)
	}
}

// Ref names a logical record: either an existing id or the record created by
// an earlier operation of the same batch.
type Ref struct {
	id      int64
	backRef int
	back    bool
}

// Existing refers to a logical record already in the store.
func Existing(id int64) Ref {
	return Ref{id: id}
}

// BackRef refers to the logical record created by the operation at index.
func BackRef(index int) Ref {
	return Ref{backRef: index, back: true}
}

// IsBackRef reports whether r is deferred.
func (r Ref) IsBackRef() bool { return r.back }

// ID returns the existing id of a non-deferred Ref.
func (r Ref) ID() int64 { return r.id }

// Index returns the operation index of a deferred Ref.
func (r Ref) Index() int { return r.backRef }

func (r Ref) String() string {
	if r.back {
		return fmt.Sprintf("backref(%d)", r.backRef)
	}
	return strconv.FormatInt(r.id, 10)
}

// resolve returns the concrete logical id, looking deferred refs up in the
// ids created so far.
func (r Ref) resolve(created map[int]int64) (int64, error) {
	if !r.back {
		return r.id, nil
	}
	id, ok := created[r.backRef]
	if !ok {
		return 0, fmt.Errorf("%w: operation %d did not create a logical record", ErrBadReference, r.backRef)
	}
	return id, nil
}

// Selector picks the raw records of one logical record with one storage
// type, optionally narrowed to one sub-type code.
type Selector struct {
	LogicalID     int64
	StorageType   string
	SubTypeColumn string
	SubTypeCode   int
}

// HasSubType reports whether the selector is narrowed by sub-type.
func (s Selector) HasSubType() bool {
	return s.SubTypeColumn != ""
}

// Operation is one step of an atomic batch.
type Operation struct {
	Kind OpKind

	// OpCreateLogical: nil means the store's default account.
	Account *Account

	// OpInsertRaw
	Parent Ref

	// OpInsertRaw, OpDeleteRawByType
	StorageType string

	// OpInsertRaw, OpUpdateRaw
	Columns Columns

	// OpUpdateRaw. With Upsert set, a selector matching nothing inserts a
	// new raw record carrying Columns and the sub-type code.
	Selector Selector
	Upsert   bool

	// OpDeleteRawByType
	LogicalID int64
}

// CreateLogicalRecord creates an anonymous logical record.
func CreateLogicalRecord() Operation {
	return Operation{Kind: OpCreateLogical}
}

// InsertRawRecord inserts one raw record under parent.
func InsertRawRecord(parent Ref, storageType string, cols Columns) Operation {
	return Operation{Kind: OpInsertRaw, Parent: parent, StorageType: storageType, Columns: cols}
}

// UpdateRawRecord updates every raw record matching sel.
func UpdateRawRecord(sel Selector, cols Columns, upsert bool) Operation {
	return Operation{Kind: OpUpdateRaw, Selector: sel, Columns: cols, Upsert: upsert}
}

// DeleteRawRecordsByType deletes every raw record of one storage type.
func DeleteRawRecordsByType(logicalID int64, storageType string) Operation {
	return Operation{Kind: OpDeleteRawByType, LogicalID: logicalID, StorageType: storageType}
}

// upsertColumns returns the columns of the raw record an upsert inserts.
func (o Operation) upsertColumns() Columns {
	cols := make(Columns, len(o.Columns)+1)
	for k, v := range o.Columns {
		cols[k] = v
	}
	if o.Selector.HasSubType() {
		cols[o.Selector.SubTypeColumn] = o.Selector.SubTypeCode
	}
	return cols
}

// Validate checks an operation before it is applied.
func (o Operation) Validate() error {
	switch o.Kind {
	case OpCreateLogical:
		return nil
	case OpInsertRaw:
		if o.StorageType == "" {
			return fmt.Errorf("%s: storage type is required", o.Kind)
		}
		return ValidateColumns(o.Columns)
	case OpUpdateRaw:
		if o.Selector.StorageType == "" || o.Selector.LogicalID <= 0 {
			return fmt.Errorf("%s: selector needs a logical id and storage type", o.Kind)
		}
		if o.Selector.HasSubType() && !allowedColumns[o.Selector.SubTypeColumn] {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, o.Selector.SubTypeColumn)
		}
		return ValidateColumns(o.Columns)
	case OpDeleteRawByType:
		if o.StorageType == "" || o.LogicalID <= 0 {
			return fmt.Errorf("%s: logical id and storage type are required", o.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown operation kind %d", int(o.Kind))
	}
}
