package types

import (
	"strconv"
	"strings"
)

// ParseID parses a logical or raw record identifier from its external
// string form. Only positive base-10 integers are identifiers.
func ParseID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// FormatID renders an identifier in its external string form.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
