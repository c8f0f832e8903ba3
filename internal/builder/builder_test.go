package builder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gocontacts/internal/document"
	"github.com/dbsmedya/gocontacts/internal/groups"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/store"
	"github.com/dbsmedya/gocontacts/internal/types"
)

var account = store.Account{Name: "local", Type: "gocontacts"}

func newBuilder(t *testing.T) (*Builder, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore(account)
	log := logger.NewNop()
	return New(s, groups.NewResolver(s, log), log), s
}

func parse(t *testing.T, raw string) document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func opsOf(ops []store.Operation, kind store.OpKind, storageType string) []store.Operation {
	var out []store.Operation
	for _, op := range ops {
		if op.Kind != kind {
			continue
		}
		tag := op.StorageType
		if kind == store.OpUpdateRaw {
			tag = op.Selector.StorageType
		}
		if tag == storageType {
			out = append(out, op)
		}
	}
	return out
}

func recordsOf(t *testing.T, s *store.MemoryStore, id int64, storageType string) []store.RawRecord {
	t.Helper()
	recs, err := s.Records(context.Background(), id)
	require.NoError(t, err)
	var out []store.RawRecord
	for _, r := range recs {
		if r.StorageType == storageType {
			out = append(out, r)
		}
	}
	return out
}

// seed creates a contact through the builder and returns its id.
func seed(t *testing.T, b *Builder, raw string) int64 {
	t.Helper()
	out, err := b.Build(context.Background(), parse(t, raw))
	require.NoError(t, err)
	id, ok := types.ParseID(out.ID())
	require.True(t, ok, "result must carry the new id")
	return id
}

func itoa(id int64) string {
	return types.FormatID(id)
}

func TestPlan_InsertMapsEveryEntry(t *testing.T) {
	b, _ := newBuilder(t)
	doc := parse(t, `{
		"emails": [{"value": "a@x", "types": ["work"]}, {"value": "b@x"}, {"value": "c@x", "types": ["home"]}],
		"phoneNumbers": [{"value": "555-1", "types": ["mobile"]}, {"value": "555-2"}]
	}`)

	p, err := b.Plan(context.Background(), doc)
	require.NoError(t, err)

	assert.False(t, p.Update)
	require.NotEmpty(t, p.Ops)
	assert.Equal(t, store.OpCreateLogical, p.Ops[0].Kind)
	assert.Len(t, opsOf(p.Ops, store.OpInsertRaw, mapping.TypeEmail), 3)
	assert.Len(t, opsOf(p.Ops, store.OpInsertRaw, mapping.TypePhone), 2)
	assert.Empty(t, opsOf(p.Ops, store.OpDeleteRawByType, mapping.TypeEmail))

	for _, op := range p.Ops[1:] {
		assert.True(t, op.Parent.IsBackRef())
		assert.Equal(t, 0, op.Parent.Index())
	}
}

func TestPlan_UpdateClearsEachStorageTypeOnce(t *testing.T) {
	b, _ := newBuilder(t)
	id := seed(t, b, `{"notes": ["old"]}`)

	doc := parse(t, `{
		"id": "`+itoa(id)+`",
		"emails": [{"value": "a@x"}, {"value": "b@x"}],
		"organizations": ["Acme"],
		"jobTitles": ["Engineer"]
	}`)
	p, err := b.Plan(context.Background(), doc)
	require.NoError(t, err)

	assert.True(t, p.Update)
	assert.Len(t, opsOf(p.Ops, store.OpDeleteRawByType, mapping.TypeEmail), 1)
	assert.Len(t, opsOf(p.Ops, store.OpInsertRaw, mapping.TypeEmail), 2)
	assert.Len(t, opsOf(p.Ops, store.OpDeleteRawByType, mapping.TypeOrganization), 1)
	assert.Len(t, opsOf(p.Ops, store.OpInsertRaw, mapping.TypeOrganization), 2)
	assert.Empty(t, opsOf(p.Ops, store.OpDeleteRawByType, mapping.TypeNote), "absent fields are left alone")
	assert.Equal(t, store.OpDeleteRawByType, p.Ops[0].Kind)
}

func TestBuild_UpdateReplacesMultiValuedField(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"emails": [{"value": "a@x"}, {"value": "b@x"}, {"value": "c@x"}], "notes": ["keep"]}`)
	require.Len(t, recordsOf(t, s, id, mapping.TypeEmail), 3)

	_, err := b.Build(context.Background(), parse(t, `{"id": "`+itoa(id)+`", "emails": [{"value": "d@x"}]}`))
	require.NoError(t, err)

	emails := recordsOf(t, s, id, mapping.TypeEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, "d@x", emails[0].Get(mapping.ColData1))
	assert.Len(t, recordsOf(t, s, id, mapping.TypeNote), 1)
}

func TestBuild_OrganizationsAndJobTitlesCoexist(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"organizations": ["Old"]}`)

	_, err := b.Build(context.Background(), parse(t, `{"id": `+itoa(id)+`, "organizations": ["Acme"], "jobTitles": ["Engineer"]}`))
	require.NoError(t, err)

	orgs := recordsOf(t, s, id, mapping.TypeOrganization)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Acme", orgs[0].Get(mapping.ColData1))
	assert.Equal(t, "Engineer", orgs[1].Get(mapping.ColData4))
}

func TestBuild_InsertReturnsNewID(t *testing.T) {
	b, s := newBuilder(t)

	out, err := b.Build(context.Background(), parse(t, `{"name": {"displayName": "Ada"}}`))
	require.NoError(t, err)

	id := out.ID()
	require.NotEmpty(t, id)
	ids, err := s.LogicalIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids.Strings())
	assert.True(t, out.Has("name"))
}

func TestBuild_UnknownOrNonNumericIDInserts(t *testing.T) {
	for _, id := range []string{`"abc"`, `"999"`, `""`} {
		t.Run(id, func(t *testing.T) {
			b, s := newBuilder(t)
			out, err := b.Build(context.Background(), parse(t, `{"id": `+id+`, "notes": ["n"]}`))
			require.NoError(t, err)

			ids, _ := s.LogicalIDs(context.Background())
			assert.Equal(t, 1, ids.Len())
			assert.Equal(t, ids.Strings()[0], out.ID())
		})
	}
}

func TestBuild_StructuredName(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"name": {
		"displayName": "Dr. Ada King",
		"givenNames": ["Ada", "Augusta"],
		"familyNames": ["King"],
		"additionalNames": ["Byron"],
		"honorificPrefixes": ["Dr."],
		"honorificSuffixes": [],
		"nicknames": ["Countess", "Lady"]
	}}`)

	names := recordsOf(t, s, id, mapping.TypeName)
	require.Len(t, names, 1)
	n := names[0]
	assert.Equal(t, "Dr. Ada King", n.Get(mapping.ColData1))
	assert.Equal(t, "Ada", n.Get(mapping.ColData2))
	assert.Equal(t, "King", n.Get(mapping.ColData3))
	assert.Equal(t, "Dr.", n.Get(mapping.ColData4))
	assert.Equal(t, "Byron", n.Get(mapping.ColData5))
	assert.Equal(t, "", n.Get(mapping.ColData6))

	nicks := recordsOf(t, s, id, mapping.TypeNickname)
	require.Len(t, nicks, 1)
	assert.Equal(t, "Countess", nicks[0].Get(mapping.ColData1))

	// Update rewrites the name in place
	_, err := b.Build(context.Background(), parse(t, `{"id": "`+itoa(id)+`", "name": {"displayName": "Ada Lovelace"}}`))
	require.NoError(t, err)
	names = recordsOf(t, s, id, mapping.TypeName)
	require.Len(t, names, 1)
	assert.Equal(t, "Ada Lovelace", names[0].Get(mapping.ColData1))
	assert.Equal(t, int64(2), names[0].Version)
}

func TestBuild_UpdateAddsMissingName(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"notes": ["n"]}`)

	_, err := b.Build(context.Background(), parse(t, `{"id": "`+itoa(id)+`", "name": {"displayName": "Ada"}}`))
	require.NoError(t, err)

	names := recordsOf(t, s, id, mapping.TypeName)
	require.Len(t, names, 1, "update of an absent name must insert it")
	assert.Equal(t, "Ada", names[0].Get(mapping.ColData1))
}

func TestBuild_Dates(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{
		"birthday": "1990-05-17T00:00:00.000Z",
		"anniversary": "17/05/2015",
		"lastUpdated": "2024-01-02T03:04:05.678Z",
		"notes": ["still written"]
	}`)

	events := recordsOf(t, s, id, mapping.TypeEvent)
	require.Len(t, events, 1, "bad anniversary is skipped")
	assert.Equal(t, "1990-05-17", events[0].Get(mapping.ColData1))
	assert.Equal(t, "3", events[0].Get(mapping.ColData2))

	last := recordsOf(t, s, id, mapping.TypeLastUpdated)
	require.Len(t, last, 1)
	assert.Equal(t, "2024-01-02", last[0].Get(mapping.ColData1))

	assert.Len(t, recordsOf(t, s, id, mapping.TypeNote), 1)
}

func TestBuild_BirthdayUpdateKeepsAnniversary(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"birthday": "1990-05-17T00:00:00.000Z", "anniversary": "2015-06-01T00:00:00.000Z"}`)

	_, err := b.Build(context.Background(), parse(t, `{"id": "`+itoa(id)+`", "birthday": "1991-01-01T00:00:00.000Z"}`))
	require.NoError(t, err)

	byCode := map[string]string{}
	for _, r := range recordsOf(t, s, id, mapping.TypeEvent) {
		byCode[r.Get(mapping.ColData2)] = r.Get(mapping.ColData1)
	}
	assert.Equal(t, map[string]string{"3": "1991-01-01", "1": "2015-06-01"}, byCode)
}

func TestBuild_Gender(t *testing.T) {
	b, s := newBuilder(t)

	id := seed(t, b, `{"gender": "female"}`)
	g := recordsOf(t, s, id, mapping.TypeGender)
	require.Len(t, g, 1)
	assert.Equal(t, "female", g[0].Get(mapping.ColData1))

	id = seed(t, b, `{"gender": "robot"}`)
	assert.Empty(t, recordsOf(t, s, id, mapping.TypeGender))
}

func TestBuild_InstantMessaging(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"impp": [
		{"value": "skype:myhandle", "types": ["work"], "preferred": true},
		{"value": "carrierpigeon:coo"},
		{"value": "plainhandle"}
	]}`)

	ims := recordsOf(t, s, id, mapping.TypeIM)
	require.Len(t, ims, 3)

	assert.Equal(t, "myhandle", ims[0].Get(mapping.ColData1))
	assert.Equal(t, "3", ims[0].Get(mapping.ColData5))
	assert.Equal(t, "2", ims[0].Get(mapping.ColData2))
	assert.True(t, ims[0].IsPrimary)
	assert.True(t, ims[0].IsSuperPrimary)

	assert.Equal(t, "coo", ims[1].Get(mapping.ColData1))
	assert.Equal(t, "", ims[1].Get(mapping.ColData5))

	assert.Equal(t, "plainhandle", ims[2].Get(mapping.ColData1))
}

func TestSplitIM(t *testing.T) {
	tests := []struct {
		in, proto, handle string
	}{
		{"skype:myhandle", "skype", "myhandle"},
		{"jabber:me@host:5222", "jabber", "me@host:5222"},
		{"nohandle", "", "nohandle"},
		{":x", "", "x"},
	}
	for _, tt := range tests {
		proto, handle := SplitIM(tt.in)
		assert.Equal(t, tt.proto, proto, tt.in)
		assert.Equal(t, tt.handle, handle, tt.in)
	}
}

func TestBuild_TypedFields(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{
		"phoneNumbers": [{"value": "1", "types": ["work_mobile"]}, {"value": "2", "types": ["satellite"]}],
		"addresses": [{"streetAddress": "1 Main St", "postalCode": "12345", "types": ["home"], "preferred": true}],
		"notes": [{"value": "n", "preferred": true}]
	}`)

	phones := recordsOf(t, s, id, mapping.TypePhone)
	require.Len(t, phones, 2)
	assert.Equal(t, "17", phones[0].Get(mapping.ColData2))
	assert.Equal(t, "", phones[1].Get(mapping.ColData2), "unknown label means no sub-type")

	addr := recordsOf(t, s, id, mapping.TypePostal)
	require.Len(t, addr, 1)
	assert.Equal(t, "1 Main St", addr[0].Get(mapping.ColData4))
	assert.Equal(t, "12345", addr[0].Get(mapping.ColData9))
	assert.Equal(t, "1", addr[0].Get(mapping.ColData2))
	assert.True(t, addr[0].IsPrimary)

	notes := recordsOf(t, s, id, mapping.TypeNote)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].IsPrimary, "notes have no preferred flag")
}

func TestBuild_Categories(t *testing.T) {
	b, s := newBuilder(t)
	id := seed(t, b, `{"categories": ["friends", "work", "friends"]}`)

	members := recordsOf(t, s, id, mapping.TypeGroupMembership)
	require.Len(t, members, 3)

	gs, err := s.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.Equal(t, itoa(gs[0].ID), members[0].Get(mapping.ColData1))
	assert.Equal(t, itoa(gs[1].ID), members[1].Get(mapping.ColData1))
	assert.Equal(t, members[0].Get(mapping.ColData1), members[2].Get(mapping.ColData1))
}

func TestBuildJSON_Malformed(t *testing.T) {
	b, s := newBuilder(t)

	for _, raw := range []string{`[1,2]`, `{"id":`, `"x"`} {
		out, err := b.BuildJSON(context.Background(), []byte(raw))
		assert.ErrorIs(t, err, ErrMalformedDocument)
		assert.Equal(t, "{}", out.String())
	}

	ids, _ := s.LogicalIDs(context.Background())
	assert.True(t, ids.IsEmpty())
}

type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) Apply(ctx context.Context, ops []store.Operation) (store.ApplyResult, error) {
	return store.ApplyResult{}, errors.New("store unavailable")
}

func TestBuild_ApplyFailureReturnsInput(t *testing.T) {
	s := failingStore{store.NewMemoryStore(account)}
	b := New(s, groups.NewResolver(s.MemoryStore, logger.NewNop()), logger.NewNop())

	in := parse(t, `{"notes": ["n"]}`)
	out, err := b.Build(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, in.String(), out.String())
}

func TestBuild_LockTimeoutReturnsInput(t *testing.T) {
	s := store.NewMemoryStore(account)
	b := New(s, groups.NewResolver(s, logger.NewNop()), logger.NewNop(), WithLocker(blockedLocker{}))

	in := parse(t, `{"id": "1", "notes": ["n"]}`)
	out, err := b.Build(context.Background(), in)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, in.String(), out.String())
}

type blockedLocker struct{}

func (blockedLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	return context.DeadlineExceeded
}

// recordingLocker runs fn directly and remembers every key it was asked for.
type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return fn()
}

func TestBuild_LockKeyIsCanonicalID(t *testing.T) {
	s := store.NewMemoryStore(account)
	rec := &recordingLocker{}
	b := New(s, groups.NewResolver(s, logger.NewNop()), logger.NewNop(), WithLocker(rec))

	id := seed(t, b, `{"notes": ["first"]}`)
	require.Equal(t, int64(1), id)
	assert.Empty(t, rec.keys, "inserts without an id take no lock")

	for _, raw := range []string{
		`{"id": "1", "notes": ["a"]}`,
		`{"id": "01", "notes": ["b"]}`,
		`{"id": 1, "notes": ["c"]}`,
		`{"id": " 1 ", "notes": ["d"]}`,
	} {
		_, err := b.Build(context.Background(), parse(t, raw))
		require.NoError(t, err, raw)
	}
	assert.Equal(t, []string{"1", "1", "1", "1"}, rec.keys)

	notes := recordsOf(t, s, 1, mapping.TypeNote)
	require.Len(t, notes, 1)
	assert.Equal(t, "d", notes[0].Get(mapping.ColData1))

	_, err := b.Build(context.Background(), parse(t, `{"id": "abc", "notes": ["x"]}`))
	require.NoError(t, err)
	assert.Len(t, rec.keys, 4, "unparseable ids insert without a lock")
}

func TestNew_PanicsOnIncompleteTable(t *testing.T) {
	table, err := mapping.NewTable(mapping.Fields()[:3], nil)
	require.NoError(t, err)

	s := store.NewMemoryStore(account)
	assert.Panics(t, func() {
		New(s, groups.NewResolver(s, logger.NewNop()), logger.NewNop(), WithTable(table))
	})
}
