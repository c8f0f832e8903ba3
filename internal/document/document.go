// Package document provides read access and patching for loosely typed
// contact documents without decoding them into fixed structs.
package document

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotObject is returned when the input is not a single JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// Document is an immutable JSON object. The zero value behaves like "{}".
type Document struct {
	raw string
}

// Entry is one element of a multi-valued field. A bare string element
// becomes an Entry whose Value is that string.
type Entry struct {
	Value     string
	Types     []string
	Preferred bool
	fields    gjson.Result
}

// Field returns a named member of an object entry.
func (e Entry) Field(key string) (string, bool) {
	if key == "value" {
		return e.Value, e.Value != ""
	}
	if !e.fields.IsObject() {
		return "", false
	}
	r := e.fields.Get(escapeKey(key))
	if !r.Exists() || r.Type == gjson.Null {
		return "", false
	}
	return r.String(), true
}

// Empty returns the empty document "{}".
func Empty() Document {
	return Document{raw: "{}"}
}

// Parse validates data as a JSON object.
func Parse(data []byte) (Document, error) {
	if !gjson.ValidBytes(data) {
		return Document{}, ErrNotObject
	}
	if !gjson.ParseBytes(data).IsObject() {
		return Document{}, ErrNotObject
	}
	return Document{raw: strings.TrimSpace(string(data))}, nil
}

// FromResult wraps an object nested in another document.
func FromResult(r gjson.Result) (Document, bool) {
	if !r.IsObject() {
		return Document{}, false
	}
	return Document{raw: r.Raw}, true
}

// String returns the JSON text.
func (d Document) String() string {
	if d.raw == "" {
		return "{}"
	}
	return d.raw
}

// MarshalJSON embeds the document verbatim.
func (d Document) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts only a JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsEmpty reports whether the document has no members.
func (d Document) IsEmpty() bool {
	empty := true
	gjson.Parse(d.String()).ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

// Get returns the raw member at key.
func (d Document) Get(key string) gjson.Result {
	return gjson.Get(d.String(), escapeKey(key))
}

// Has reports whether key is present and not null.
func (d Document) Has(key string) bool {
	r := d.Get(key)
	return r.Exists() && r.Type != gjson.Null
}

// Text returns a scalar member as a string. Numbers are rendered in their
// JSON form so numeric ids survive.
func (d Document) Text(key string) (string, bool) {
	r := d.Get(key)
	switch r.Type {
	case gjson.String, gjson.Number:
		return r.String(), true
	case gjson.True, gjson.False:
		return r.String(), true
	default:
		return "", false
	}
}

// ID returns the trimmed "id" member, or "" when absent.
func (d Document) ID() string {
	id, _ := d.Text("id")
	return strings.TrimSpace(id)
}

// Bool returns a boolean member; absent or non-boolean is false.
func (d Document) Bool(key string) bool {
	return d.Get(key).Type == gjson.True
}

// Object returns a nested object member.
func (d Document) Object(key string) (Document, bool) {
	return FromResult(d.Get(key))
}

// StringArray returns the string members of an array field, skipping
// non-string elements. A scalar string is a one-element array.
func (d Document) StringArray(key string) []string {
	r := d.Get(key)
	if r.Type == gjson.String {
		return []string{r.String()}
	}
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, el := range r.Array() {
		if el.Type == gjson.String || el.Type == gjson.Number {
			out = append(out, el.String())
		}
	}
	return out
}

// FirstOf returns the first element of an array field, or the scalar value.
func (d Document) FirstOf(key string) (string, bool) {
	values := d.StringArray(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Entries returns the elements of a multi-valued field in order. Elements
// that are neither strings nor objects are skipped.
func (d Document) Entries(key string) []Entry {
	r := d.Get(key)
	if !r.IsArray() {
		return nil
	}
	var out []Entry
	for _, el := range r.Array() {
		switch {
		case el.Type == gjson.String:
			out = append(out, Entry{Value: el.String()})
		case el.IsObject():
			entry := Entry{
				Value:     el.Get("value").String(),
				Preferred: el.Get("preferred").Type == gjson.True,
				fields:    el,
			}
			types := el.Get("types")
			if types.Type == gjson.String {
				entry.Types = []string{types.String()}
			} else {
				for _, t := range types.Array() {
					if t.Type == gjson.String {
						entry.Types = append(entry.Types, t.String())
					}
				}
			}
			out = append(out, entry)
		}
	}
	return out
}

// Keys returns the top-level member names in document order.
func (d Document) Keys() []string {
	var keys []string
	gjson.Parse(d.String()).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// Set returns a copy of the document with key set to value.
func (d Document) Set(key string, value interface{}) (Document, error) {
	out, err := sjson.Set(d.String(), escapeKey(key), value)
	if err != nil {
		return d, err
	}
	return Document{raw: out}, nil
}

// WithID returns a copy of the document carrying id.
func (d Document) WithID(id string) (Document, error) {
	return d.Set("id", id)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, "!", `\!`,
)

func escapeKey(key string) string {
	return pathEscaper.Replace(key)
}
