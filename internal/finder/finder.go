// Package finder rebuilds contact documents from stored raw records.
package finder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/gocontacts/internal/builder"
	"github.com/dbsmedya/gocontacts/internal/document"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/store"
	"github.com/dbsmedya/gocontacts/internal/types"
)

// Store is the read side of the record store used by the finder.
type Store interface {
	LogicalIDs(ctx context.Context) (*types.IDSet, error)
	Records(ctx context.Context, logicalID int64) ([]store.RawRecord, error)
}

// GroupTitles maps group ids back to labels.
type GroupTitles interface {
	Title(ctx context.Context, id int64) (string, error)
}

// Options selects the documents returned by Find.
type Options struct {
	// ID selects a single contact when non-empty.
	ID string
	// Limit caps the number of documents when positive.
	Limit int
}

// ParseOptions reads find options from a document such as {"id":"7"} or
// {"limit":10}.
func ParseOptions(doc document.Document) Options {
	var o Options
	if id, ok := doc.Text("id"); ok {
		o.ID = id
	}
	if l := doc.Get("limit"); l.Exists() {
		o.Limit = int(l.Int())
	}
	return o
}

// Finder reads documents back through the mapping table.
type Finder struct {
	store  Store
	groups GroupTitles
	table  *mapping.Table
	logger *logger.Logger
}

// New creates a Finder over the default mapping table.
func New(s Store, groups GroupTitles, log *logger.Logger) *Finder {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Finder{
		store:  s,
		groups: groups,
		table:  mapping.Default(),
		logger: log.WithComponent("finder"),
	}
}

// Find returns the selected documents in ascending id order. An id that is
// not a stored contact yields no documents.
func (f *Finder) Find(ctx context.Context, opts Options) ([]document.Document, error) {
	var ids []int64
	if opts.ID != "" {
		id, ok := types.ParseID(opts.ID)
		if !ok {
			return nil, nil
		}
		ids = []int64{id}
	} else {
		set, err := f.store.LogicalIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list contacts: %w", err)
		}
		ids = set.Slice()
	}
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	docs := make([]document.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := f.Document(ctx, id)
		if err != nil {
			if opts.ID != "" && errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Document rebuilds one contact.
func (f *Finder) Document(ctx context.Context, id int64) (document.Document, error) {
	records, err := f.store.Records(ctx, id)
	if err != nil {
		return document.Empty(), fmt.Errorf("failed to read contact %d: %w", id, err)
	}

	fields := orderedmap.NewOrderedMap[string, interface{}]()
	fields.Set("id", types.FormatID(id))
	fields.Set(mapping.FieldName, nil)
	name := orderedmap.NewOrderedMap[string, interface{}]()

	for _, r := range records {
		switch r.StorageType {
		case mapping.TypeName:
			f.readName(name, r)
		case mapping.TypeNickname:
			name.Set(mapping.FieldNicknames, []string{r.Get(mapping.ColData1)})
		case mapping.TypeGroupMembership:
			f.readCategory(ctx, fields, r)
		case mapping.TypeGender:
			fields.Set(mapping.FieldGender, r.Get(mapping.ColData1))
		case mapping.TypeLastUpdated:
			setDate(fields, mapping.FieldLastUpdated, r.Get(mapping.ColData1))
		case mapping.TypeEvent:
			f.readEvent(fields, r)
		default:
			f.readGeneric(fields, r)
		}
	}

	if name.Len() > 0 {
		fields.Set(mapping.FieldName, toMap(name))
	} else {
		fields.Delete(mapping.FieldName)
	}

	doc := document.Empty()
	for el := fields.Front(); el != nil; el = el.Next() {
		doc, err = doc.Set(el.Key, el.Value)
		if err != nil {
			return document.Empty(), fmt.Errorf("failed to set %s on contact %d: %w", el.Key, id, err)
		}
	}
	return doc, nil
}

func (f *Finder) readName(name *orderedmap.OrderedMap[string, interface{}], r store.RawRecord) {
	m := f.table.MustLookup(mapping.FieldName)
	seen := map[string]bool{}
	for _, key := range m.ColumnKeys() {
		col, _ := m.Column(key)
		if seen[col] {
			continue
		}
		seen[col] = true
		if v := r.Get(col); v != "" {
			name.Set(key, []string{v})
		}
	}
}

func (f *Finder) readCategory(ctx context.Context, fields *orderedmap.OrderedMap[string, interface{}], r store.RawRecord) {
	gid, ok := types.ParseID(r.Get(mapping.ColData1))
	if !ok || f.groups == nil {
		return
	}
	title, err := f.groups.Title(ctx, gid)
	if err != nil {
		f.logger.Warnf("Failed to resolve group %d: %v", gid, err)
		return
	}
	appendValue(fields, mapping.FieldCategories, title)
}

func (f *Finder) readEvent(fields *orderedmap.OrderedMap[string, interface{}], r store.RawRecord) {
	code, err := strconv.Atoi(r.Get(mapping.ColData2))
	if err != nil {
		return
	}
	field, ok := f.table.MustLookup(mapping.FieldBirthday).LabelFor(code)
	if !ok {
		return
	}
	if _, known := f.table.Lookup(field); !known {
		return
	}
	setDate(fields, field, r.Get(mapping.ColData1))
}

func (f *Finder) readGeneric(fields *orderedmap.OrderedMap[string, interface{}], r store.RawRecord) {
	for _, m := range f.table.ByStorageType(r.StorageType) {
		if !m.MultiValued {
			continue
		}
		entry, ok := readEntry(m, r)
		if !ok {
			continue
		}
		appendValue(fields, m.Name, entry)
	}
}

// readEntry rebuilds one entry of m. Records whose columns for m are all
// empty belong to another field sharing the storage type.
func readEntry(m mapping.FieldMapping, r store.RawRecord) (map[string]interface{}, bool) {
	entry := map[string]interface{}{}
	for _, key := range m.ColumnKeys() {
		col, _ := m.Column(key)
		v := r.Get(col)
		if v == "" {
			continue
		}
		if key == "value" && m.ProtocolColumn != "" {
			if code, err := strconv.Atoi(r.Get(m.ProtocolColumn)); err == nil {
				if proto, known := m.ProtocolFor(code); known {
					v = proto + ":" + v
				}
			}
		}
		entry[key] = v
	}
	if len(entry) == 0 {
		return nil, false
	}

	if m.HasTypes() {
		if code, err := strconv.Atoi(r.Get(m.TypeColumn)); err == nil {
			if label, known := m.LabelFor(code); known {
				entry["types"] = []string{label}
			}
		}
	}
	if m.Primary != nil {
		entry["preferred"] = r.IsPrimary
	}
	return entry, true
}

func appendValue(fields *orderedmap.OrderedMap[string, interface{}], key string, v interface{}) {
	cur, _ := fields.Get(key)
	list, _ := cur.([]interface{})
	fields.Set(key, append(list, v))
}

// setDate renders a stored date in document form. Unparseable dates are
// returned as stored.
func setDate(fields *orderedmap.OrderedMap[string, interface{}], key, stored string) {
	if stored == "" {
		return
	}
	t, err := time.Parse(builder.StoredDateLayout, stored)
	if err != nil {
		fields.Set(key, stored)
		return
	}
	fields.Set(key, t.Format(builder.DocumentDateLayout))
}

func toMap(m *orderedmap.OrderedMap[string, interface{}]) map[string]interface{} {
	out := make(map[string]interface{}, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out[el.Key] = el.Value
	}
	return out
}
