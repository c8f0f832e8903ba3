// Package builder turns contact documents into atomic batches of record
// store operations.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gocontacts/internal/document"
	"github.com/dbsmedya/gocontacts/internal/lock"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/metrics"
	"github.com/dbsmedya/gocontacts/internal/store"
	"github.com/dbsmedya/gocontacts/internal/types"
)

// ErrMalformedDocument is returned when the input is not a JSON object.
var ErrMalformedDocument = errors.New("malformed contact document")

// Date layouts of document dates and stored dates.
const (
	DocumentDateLayout = "2006-01-02T15:04:05.000Z"
	StoredDateLayout   = "2006-01-02"
)

// Store is the part of the record store the builder writes through.
type Store interface {
	HasLogicalRecord(ctx context.Context, id int64) (bool, error)
	Apply(ctx context.Context, ops []store.Operation) (store.ApplyResult, error)
}

// GroupResolver maps a category label to a group id.
type GroupResolver interface {
	Resolve(ctx context.Context, label string) (int64, error)
}

// Builder builds and applies contact documents.
type Builder struct {
	store  Store
	groups GroupResolver
	table  *mapping.Table
	locker lock.Locker
	logger *logger.Logger

	name, nicknames, categories, gender, lastUpdated mapping.FieldMapping
	birthday, anniversary                            mapping.FieldMapping
}

// Option configures a Builder.
type Option func(*Builder)

// WithLocker sets the lock that serializes builds of one logical record.
func WithLocker(l lock.Locker) Option {
	return func(b *Builder) { b.locker = l }
}

// WithTable replaces the default mapping table.
func WithTable(t *mapping.Table) Option {
	return func(b *Builder) { b.table = t }
}

// New creates a Builder. It panics if the mapping table lacks a field the
// builder writes.
func New(s Store, groups GroupResolver, log *logger.Logger, opts ...Option) *Builder {
	b := &Builder{
		store:  s,
		groups: groups,
		table:  mapping.Default(),
		locker: lock.NewKeyedMutex(),
		logger: log,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.NewDefault()
	}
	b.logger = b.logger.WithComponent("builder")

	b.name = b.table.MustLookup(mapping.FieldName)
	b.nicknames = b.table.MustLookup(mapping.FieldNicknames)
	b.categories = b.table.MustLookup(mapping.FieldCategories)
	b.gender = b.table.MustLookup(mapping.FieldGender)
	b.lastUpdated = b.table.MustLookup(mapping.FieldLastUpdated)
	b.birthday = b.table.MustLookup(mapping.FieldBirthday)
	b.anniversary = b.table.MustLookup(mapping.FieldAnniversary)
	for _, name := range mapping.GenericFields {
		b.table.MustLookup(name)
	}
	return b
}

// BuildJSON parses data and builds it. Input that is not a JSON object
// yields an empty document and ErrMalformedDocument.
func (b *Builder) BuildJSON(ctx context.Context, data []byte) (document.Document, error) {
	doc, err := document.Parse(data)
	if err != nil {
		b.logger.Errorf("Failed to parse contact document: %v", err)
		return document.Empty(), fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return b.Build(ctx, doc)
}

// Build writes doc to the store as one batch.
//
// A document whose id names an existing logical record updates it; anything
// else creates a new logical record and the returned document carries its
// id. If the batch fails, the error is returned along with doc unchanged.
func (b *Builder) Build(ctx context.Context, doc document.Document) (document.Document, error) {
	id, ok := types.ParseID(doc.ID())
	if !ok {
		return b.build(ctx, doc)
	}
	key := types.FormatID(id)

	out := doc
	ran := false
	err := b.locker.WithLock(ctx, key, func() error {
		ran = true
		var err error
		out, err = b.build(ctx, doc)
		return err
	})
	if err != nil && !ran {
		b.logger.WithContact(key).Errorf("Failed to lock contact: %v", err)
	}
	return out, err
}

func (b *Builder) build(ctx context.Context, doc document.Document) (document.Document, error) {
	start := time.Now()

	p, err := b.Plan(ctx, doc)
	if err != nil {
		b.logger.Errorf("Failed to plan contact build: %v", err)
		metrics.ObserveBuild("unknown", time.Since(start).Seconds(), err)
		return doc, err
	}

	log := b.logger.WithContact(p.Ref.String())
	for _, op := range p.Ops {
		metrics.AddStoreOperation(op.Kind.String())
	}

	res, err := b.store.Apply(ctx, p.Ops)
	metrics.ObserveBuild(p.Mode(), time.Since(start).Seconds(), err)
	if err != nil {
		log.Errorf("Failed to apply batch of %d operations: %v", len(p.Ops), err)
		return doc, fmt.Errorf("failed to apply contact batch: %w", err)
	}
	log.Debugf("Applied %s batch of %d operations", p.Mode(), len(p.Ops))

	if p.Update {
		return doc, nil
	}

	id, ok := res.CreatedID(0)
	if !ok {
		return doc, nil
	}
	amended, err := doc.WithID(types.FormatID(id))
	if err != nil {
		log.Warnf("Failed to set id %d on result: %v", id, err)
		return doc, nil
	}
	return amended, nil
}

// Plan is the batch a document turns into.
type Plan struct {
	Update bool
	Ref    store.Ref
	Ops    []store.Operation

	deleted map[string]bool
}

// Mode returns "update" or "insert".
func (p *Plan) Mode() string {
	if p.Update {
		return "update"
	}
	return "insert"
}

// Plan computes the operations for doc without applying them. Group labels
// are resolved (and possibly created) while planning.
func (b *Builder) Plan(ctx context.Context, doc document.Document) (*Plan, error) {
	p := &Plan{deleted: make(map[string]bool)}

	if id, ok := types.ParseID(doc.ID()); ok {
		exists, err := b.store.HasLogicalRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up logical record %d: %w", id, err)
		}
		if exists {
			p.Update = true
			p.Ref = store.Existing(id)
		}
	}
	if !p.Update {
		p.Ops = append(p.Ops, store.CreateLogicalRecord())
		p.Ref = store.BackRef(0)
	}

	b.planName(p, doc)
	b.planCategories(ctx, p, doc)
	b.planGender(p, doc)
	b.planDate(p, doc, b.lastUpdated, false)
	b.planDate(p, doc, b.birthday, true)
	b.planDate(p, doc, b.anniversary, true)
	for _, m := range b.table.Generic() {
		b.planGeneric(p, doc, m)
	}
	return p, nil
}

// single emits one write for a single-valued field: an insert for new
// records, an upsert-by-selector for existing ones.
func (p *Plan) single(m mapping.FieldMapping, cols store.Columns, subType int, hasSubType bool) {
	if !p.Update {
		if hasSubType {
			cols[m.TypeColumn] = subType
		}
		p.Ops = append(p.Ops, store.InsertRawRecord(p.Ref, m.StorageType, cols))
		return
	}
	sel := store.Selector{LogicalID: p.Ref.ID(), StorageType: m.StorageType}
	if hasSubType {
		sel.SubTypeColumn = m.TypeColumn
		sel.SubTypeCode = subType
	}
	p.Ops = append(p.Ops, store.UpdateRawRecord(sel, cols, true))
}

// clear emits one delete-by-type per storage type per build.
func (p *Plan) clear(storageType string) {
	if !p.Update || p.deleted[storageType] {
		return
	}
	p.deleted[storageType] = true
	p.Ops = append(p.Ops, store.DeleteRawRecordsByType(p.Ref.ID(), storageType))
}

func (b *Builder) planName(p *Plan, doc document.Document) {
	name, ok := doc.Object(mapping.FieldName)
	if !ok {
		return
	}

	cols := store.Columns{}
	for _, key := range b.name.ColumnKeys() {
		col, _ := b.name.Column(key)
		v, _ := name.FirstOf(key)
		if prev, set := cols[col]; set && prev != "" {
			continue
		}
		cols[col] = v
	}
	p.single(b.name, cols, 0, false)

	if name.Has(mapping.FieldNicknames) {
		nick, _ := name.FirstOf(mapping.FieldNicknames)
		col, _ := b.nicknames.Column("value")
		p.single(b.nicknames, store.Columns{col: nick}, 0, false)
	}
}

func (b *Builder) planCategories(ctx context.Context, p *Plan, doc document.Document) {
	if !doc.Has(mapping.FieldCategories) {
		return
	}
	m := b.categories
	col, _ := m.Column("value")

	p.clear(m.StorageType)
	for _, label := range doc.StringArray(mapping.FieldCategories) {
		gid, err := b.groups.Resolve(ctx, label)
		if err != nil {
			b.logger.Errorf("Failed to resolve category %q: %v", label, err)
			continue
		}
		p.Ops = append(p.Ops, store.InsertRawRecord(p.Ref, m.StorageType, store.Columns{col: gid}))
	}
}

func (b *Builder) planGender(p *Plan, doc document.Document) {
	g, ok := doc.Text(mapping.FieldGender)
	if !ok || !mapping.GenderValues[g] {
		return
	}
	col, _ := b.gender.Column("value")
	p.single(b.gender, store.Columns{col: g}, 0, false)
}

func (b *Builder) planDate(p *Plan, doc document.Document, m mapping.FieldMapping, event bool) {
	raw, ok := doc.Text(m.Name)
	if !ok {
		return
	}
	t, err := time.Parse(DocumentDateLayout, raw)
	if err != nil {
		b.logger.Errorf("Failed to parse %s %q: %v", m.Name, raw, err)
		return
	}
	col, _ := m.Column("value")
	cols := store.Columns{col: t.Format(StoredDateLayout)}
	if !event {
		p.single(m, cols, 0, false)
		return
	}
	code := m.TypeCodes[m.Name]
	p.single(m, cols, code, true)
}

func (b *Builder) planGeneric(p *Plan, doc document.Document, m mapping.FieldMapping) {
	if !doc.Has(m.Name) {
		return
	}
	p.clear(m.StorageType)

	for _, e := range doc.Entries(m.Name) {
		cols := store.Columns{}
		for _, key := range m.ColumnKeys() {
			v, ok := e.Field(key)
			if !ok || v == "" {
				continue
			}
			col, _ := m.Column(key)
			if m.ProtocolColumn != "" && key == "value" {
				var proto string
				proto, v = SplitIM(v)
				if code, known := m.ProtocolCodes[proto]; known {
					cols[m.ProtocolColumn] = code
				}
			}
			cols[col] = v
		}
		if len(cols) == 0 {
			continue
		}
		if code, ok := m.TypeCode(e.Types); ok {
			cols[m.TypeColumn] = code
		}
		if e.Preferred && m.Primary != nil {
			cols[m.Primary.Primary] = 1
			cols[m.Primary.SuperPrimary] = 1
		}
		p.Ops = append(p.Ops, store.InsertRawRecord(p.Ref, m.StorageType, cols))
	}
}

// SplitIM splits an instant messaging value at the first colon into
// protocol and handle. Without a colon the whole value is the handle.
func SplitIM(v string) (protocol, handle string) {
	i := strings.Index(v, ":")
	if i < 0 {
		return "", v
	}
	return v[:i], v[i+1:]
}
