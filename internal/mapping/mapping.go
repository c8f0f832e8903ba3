// Package mapping declares how contact document fields are stored as raw
// records. The table is built once and never modified.
package mapping

import (
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// Storage type tags of raw records.
const (
	TypeName            = "name"
	TypeNickname        = "nickname"
	TypeEmail           = "email"
	TypePhone           = "phone"
	TypeWebsite         = "website"
	TypePostal          = "postal"
	TypeOrganization    = "organization"
	TypeNote            = "note"
	TypeIM              = "im"
	TypePhoto           = "photo"
	TypeEvent           = "event"
	TypeGroupMembership = "group_membership"
	TypeGender          = "custom/gender"
	TypeLastUpdated     = "custom/last_updated"
)

// Storage columns of a raw record.
const (
	ColData1          = "data1"
	ColData2          = "data2"
	ColData3          = "data3"
	ColData4          = "data4"
	ColData5          = "data5"
	ColData6          = "data6"
	ColData7          = "data7"
	ColData8          = "data8"
	ColData9          = "data9"
	ColData10         = "data10"
	ColIsPrimary      = "is_primary"
	ColIsSuperPrimary = "is_super_primary"
)

// DataColumns lists the payload columns in storage order.
var DataColumns = []string{
	ColData1, ColData2, ColData3, ColData4, ColData5,
	ColData6, ColData7, ColData8, ColData9, ColData10,
}

// PrimaryColumns names the flags set on a preferred entry.
type PrimaryColumns struct {
	Primary      string
	SuperPrimary string
}

// FieldMapping describes one document field.
type FieldMapping struct {
	Name        string
	StorageType string
	MultiValued bool

	// Columns maps document keys to storage columns in write order.
	// Entries given as bare strings use the "value" key.
	Columns *orderedmap.OrderedMap[string, string]

	// TypeColumn receives the sub-type code of the first matching label.
	TypeColumn string
	TypeCodes  map[string]int

	// Primary is nil for fields without a preferred flag.
	Primary *PrimaryColumns

	ProtocolColumn string
	ProtocolCodes  map[string]int
}

// HasTypes reports whether the field carries a sub-type column.
func (m FieldMapping) HasTypes() bool {
	return m.TypeColumn != "" && len(m.TypeCodes) > 0
}

// TypeCode returns the code of the first label in labels known to this
// field. Unknown labels mean no sub-type.
func (m FieldMapping) TypeCode(labels []string) (int, bool) {
	if !m.HasTypes() {
		return 0, false
	}
	for _, l := range labels {
		if code, ok := m.TypeCodes[l]; ok {
			return code, true
		}
	}
	return 0, false
}

// LabelFor maps a stored sub-type code back to its label. When several labels
// share a code the alphabetically first one wins.
func (m FieldMapping) LabelFor(code int) (string, bool) {
	return reverse(m.TypeCodes, code)
}

// ProtocolFor maps a stored protocol code back to its label.
func (m FieldMapping) ProtocolFor(code int) (string, bool) {
	return reverse(m.ProtocolCodes, code)
}

// ColumnKeys returns the document keys of Columns in write order.
func (m FieldMapping) ColumnKeys() []string {
	if m.Columns == nil {
		return nil
	}
	return m.Columns.Keys()
}

// Column returns the storage column for a document key.
func (m FieldMapping) Column(key string) (string, bool) {
	if m.Columns == nil {
		return "", false
	}
	return m.Columns.Get(key)
}

func reverse(codes map[string]int, code int) (string, bool) {
	var labels []string
	for label, c := range codes {
		if c == code {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return "", false
	}
	sort.Strings(labels)
	return labels[0], true
}

// Table is the field registry. Lookups are safe for concurrent use because
// the table is never written after construction.
type Table struct {
	fields  *orderedmap.OrderedMap[string, FieldMapping]
	generic []string
}

// Lookup returns the mapping for a field name.
func (t *Table) Lookup(name string) (FieldMapping, bool) {
	return t.fields.Get(name)
}

// MustLookup returns the mapping for a field name and panics when the field
// is not registered.
func (t *Table) MustLookup(name string) FieldMapping {
	m, ok := t.fields.Get(name)
	if !ok {
		panic(fmt.Sprintf("mapping: field %q is not registered", name))
	}
	return m
}

// Generic returns the table-driven multi-valued fields in write order.
func (t *Table) Generic() []FieldMapping {
	out := make([]FieldMapping, 0, len(t.generic))
	for _, name := range t.generic {
		out = append(out, t.MustLookup(name))
	}
	return out
}

// All returns every registered field in registration order.
func (t *Table) All() []FieldMapping {
	out := make([]FieldMapping, 0, t.fields.Len())
	for el := t.fields.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// ByStorageType returns every field stored under tag, in registration order.
func (t *Table) ByStorageType(tag string) []FieldMapping {
	var out []FieldMapping
	for el := t.fields.Front(); el != nil; el = el.Next() {
		if el.Value.StorageType == tag {
			out = append(out, el.Value)
		}
	}
	return out
}

// StorageTypes returns the distinct storage tags in registration order.
func (t *Table) StorageTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for el := t.fields.Front(); el != nil; el = el.Next() {
		if !seen[el.Value.StorageType] {
			seen[el.Value.StorageType] = true
			out = append(out, el.Value.StorageType)
		}
	}
	return out
}

// NewTable builds a table. generic names the fields the builder handles
// through the table-driven path; each must be registered and multi-valued.
func NewTable(fields []FieldMapping, generic []string) (*Table, error) {
	t := &Table{fields: orderedmap.NewOrderedMap[string, FieldMapping]()}
	for _, f := range fields {
		if f.Name == "" || f.StorageType == "" {
			return nil, fmt.Errorf("mapping: field %q has no name or storage type", f.Name)
		}
		if _, dup := t.fields.Get(f.Name); dup {
			return nil, fmt.Errorf("mapping: field %q registered twice", f.Name)
		}
		t.fields.Set(f.Name, f)
	}
	for _, name := range generic {
		f, ok := t.fields.Get(name)
		if !ok {
			return nil, fmt.Errorf("mapping: generic field %q is not registered", name)
		}
		if !f.MultiValued {
			return nil, fmt.Errorf("mapping: generic field %q is not multi-valued", name)
		}
	}
	t.generic = append([]string(nil), generic...)
	return t, nil
}

func columns(pairs ...string) *orderedmap.OrderedMap[string, string] {
	m := orderedmap.NewOrderedMap[string, string]()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}
