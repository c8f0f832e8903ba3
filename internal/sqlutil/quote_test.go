package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple table", "raw_records", "`raw_records`"},
		{"column", "data1", "`data1`"},
		{"mixed case", "MyTable", "`MyTable`"},
		{"empty", "", "``"},
		{"single backtick", "my`table", "`my``table`"},
		{"injection attempt", "t`; DROP TABLE contacts; --", "`t``; DROP TABLE contacts; --`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifier(tt.input))
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, IsValidIdentifier("is_super_primary"))
	assert.True(t, IsValidIdentifier("data10"))
	assert.False(t, IsValidIdentifier(""))
	assert.False(t, IsValidIdentifier("data1; --"))
	assert.False(t, IsValidIdentifier("type-tag"))
	assert.False(t, IsValidIdentifier("name`"))
}

func TestQuoteIdentifierSafe(t *testing.T) {
	quoted, err := QuoteIdentifierSafe("contact_id")
	require.NoError(t, err)
	assert.Equal(t, "`contact_id`", quoted)

	_, err = QuoteIdentifierSafe("contact id")
	require.Error(t, err)

	var invalid *InvalidIdentifierError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "contact id", invalid.Name)
	assert.Contains(t, err.Error(), "invalid identifier: contact id")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "", Placeholders(-1))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?,?,?", Placeholders(3))
}
