package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gookit/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gocontacts/internal/detector"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/types"
)

func changeSet(added, removed, modified []int64) detector.ChangeSet {
	return detector.ChangeSet{
		Added:    types.NewIDSet(added...),
		Removed:  types.NewIDSet(removed...),
		Modified: types.NewIDSet(modified...),
	}
}

func TestMarshal_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name string
		cs   detector.ChangeSet
	}{
		{"added_only", changeSet([]int64{12, 3}, nil, nil)},
		{"resume_full", changeSet([]int64{4}, []int64{3, 2}, []int64{1})},
		{"modified_only", changeSet(nil, nil, []int64{100, 9, 10})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.cs)
			require.NoError(t, err)
			g.Assert(t, tt.name, b)
		})
	}
}

func TestFromChangeSet_OmitsEmptySubsets(t *testing.T) {
	ev := FromChangeSet(changeSet(nil, []int64{7}, nil))

	assert.Equal(t, EventName, ev.EventName)
	assert.Nil(t, ev.Data.Added)
	assert.Equal(t, []string{"7"}, ev.Data.Removed)
	assert.Nil(t, ev.Data.Modified)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, logger.NewNop())

	w.ContactsChanged(changeSet([]int64{1}, nil, nil))
	w.ContactsChanged(changeSet(nil, nil, []int64{2}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"eventName":"oncontactschange","data":{"added":["1"]}}`, lines[0])
	assert.JSONEq(t, `{"eventName":"oncontactschange","data":{"modified":["2"]}}`, lines[1])
}

func TestConsolePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsolePrinter(&buf)

	p.ContactsChanged(changeSet([]int64{4}, []int64{2, 3}, []int64{1}))

	out := color.ClearCode(buf.String())
	assert.Equal(t, "oncontactschange +4 -2,3 ~1\n", out)
}

func TestMulti(t *testing.T) {
	var got []string
	l := func(tag string) detector.Listener {
		return detector.ListenerFunc(func(cs detector.ChangeSet) {
			got = append(got, tag+":"+strings.Join(cs.Added.Strings(), ","))
		})
	}

	m := Multi{l("a"), nil, l("b")}
	m.ContactsChanged(changeSet([]int64{5}, nil, nil))

	assert.Equal(t, []string{"a:5", "b:5"}, got)
}
