package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"object", `{"id":"1"}`, false},
		{"empty object", `{}`, false},
		{"array", `[1,2]`, true},
		{"scalar", `"x"`, true},
		{"garbage", `{"id":`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotObject)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDocument_Accessors(t *testing.T) {
	doc, err := Parse([]byte(`{
		"id": 12,
		"gender": "female",
		"name": {"displayName": "Ada", "givenNames": ["Ada", "Augusta"]},
		"categories": ["friends", "work"],
		"favorite": true,
		"nothing": null
	}`))
	require.NoError(t, err)

	assert.Equal(t, "12", doc.ID())
	assert.True(t, doc.Has("gender"))
	assert.False(t, doc.Has("nothing"))
	assert.False(t, doc.Has("missing"))
	assert.True(t, doc.Bool("favorite"))
	assert.Equal(t, []string{"friends", "work"}, doc.StringArray("categories"))
	assert.Equal(t, []string{"id", "gender", "name", "categories", "favorite", "nothing"}, doc.Keys())

	name, ok := doc.Object("name")
	require.True(t, ok)
	first, ok := name.FirstOf("givenNames")
	assert.True(t, ok)
	assert.Equal(t, "Ada", first)
	display, ok := name.FirstOf("displayName")
	assert.True(t, ok)
	assert.Equal(t, "Ada", display)

	_, ok = doc.Object("gender")
	assert.False(t, ok)
}

func TestDocument_Entries(t *testing.T) {
	doc, err := Parse([]byte(`{
		"emails": [
			{"value": "a@example.com", "types": ["work"], "preferred": true},
			"b@example.com",
			42,
			{"value": "c@example.com", "types": "home"}
		],
		"addresses": [{"streetAddress": "1 Main St", "region": "CA", "types": ["home"]}]
	}`))
	require.NoError(t, err)

	emails := doc.Entries("emails")
	require.Len(t, emails, 3)
	assert.Equal(t, "a@example.com", emails[0].Value)
	assert.Equal(t, []string{"work"}, emails[0].Types)
	assert.True(t, emails[0].Preferred)
	assert.Equal(t, "b@example.com", emails[1].Value)
	assert.Empty(t, emails[1].Types)
	assert.Equal(t, []string{"home"}, emails[2].Types)

	addr := doc.Entries("addresses")
	require.Len(t, addr, 1)
	street, ok := addr[0].Field("streetAddress")
	assert.True(t, ok)
	assert.Equal(t, "1 Main St", street)
	_, ok = addr[0].Field("postalCode")
	assert.False(t, ok)

	assert.Nil(t, doc.Entries("missing"))
}

func TestDocument_WithID(t *testing.T) {
	doc, err := Parse([]byte(`{"name":{"displayName":"Ada"}}`))
	require.NoError(t, err)

	amended, err := doc.WithID("7")
	require.NoError(t, err)

	assert.Equal(t, "7", amended.ID())
	assert.Equal(t, "", doc.ID(), "original must not change")
	assert.JSONEq(t, `{"name":{"displayName":"Ada"},"id":"7"}`, amended.String())
}

func TestDocument_JSONEmbedding(t *testing.T) {
	doc, err := Parse([]byte(`{"id":"3"}`))
	require.NoError(t, err)

	out, err := json.Marshal(map[string]interface{}{"data": doc})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"id":"3"}}`, string(out))

	var back struct {
		Data Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "3", back.Data.ID())

	var zero Document
	assert.Equal(t, "{}", zero.String())
	assert.True(t, zero.IsEmpty())
	assert.True(t, Empty().IsEmpty())
}

func TestDocument_EscapedKeys(t *testing.T) {
	doc, err := Parse([]byte(`{"a.b": "dotted"}`))
	require.NoError(t, err)

	v, ok := doc.Text("a.b")
	assert.True(t, ok)
	assert.Equal(t, "dotted", v)
}
