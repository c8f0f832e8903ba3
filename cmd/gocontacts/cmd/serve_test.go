package cmd

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestServe_Session(t *testing.T) {
	cfg := writeConfig(t)
	session := strings.Join([]string{
		`{"cmd":"save","_promise_id":"a","contact":{"gender":"male"}}`,
		`{"cmd":"find","_promise_id":"b"}`,
		`{"cmd":"bogus","_promise_id":"c"}`,
	}, "\n")

	out, err := runCLI(t, session, "serve", "-c", cfg)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a", gjson.Get(lines[0], "_promise_id").String())
	assert.Equal(t, "male", gjson.Get(lines[0], "data.gender").String())
	assert.Equal(t, int64(1), gjson.Get(lines[1], "data.#").Int())
	assert.Contains(t, gjson.Get(lines[2], "error").String(), "unknown command")
}

func TestServe_ReportsChangesBeforeExit(t *testing.T) {
	for _, watch := range []bool{false, true} {
		t.Run(fmt.Sprintf("watch_file=%v", watch), func(t *testing.T) {
			cfg := writeConfigDetector(t, fmt.Sprintf(
				"  enabled: true\n  watch_file: %v\n  resume_on_sigcont: false\n  poll_interval_seconds: 0\n", watch))

			out, err := runCLI(t, `{"cmd":"save","_promise_id":"a","contact":{"gender":"female"}}`, "serve", "-c", cfg)
			require.NoError(t, err)

			var reply, event string
			for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
				switch {
				case gjson.Get(line, "eventName").Exists():
					require.Empty(t, event, "one save must yield one event: %s", out)
					event = line
				case gjson.Get(line, "_promise_id").Exists():
					reply = line
				}
			}
			require.NotEmpty(t, reply, out)
			require.NotEmpty(t, event, "change event missing: %s", out)

			id := gjson.Get(reply, "data.id").String()
			require.NotEmpty(t, id)
			assert.Equal(t, "oncontactschange", gjson.Get(event, "eventName").String())
			assert.Equal(t, []interface{}{id}, gjson.Get(event, "data.added").Value())
			assert.False(t, gjson.Get(event, "data.removed").Exists())
		})
	}
}

func TestSyncWriter(t *testing.T) {
	var sb strings.Builder
	w := &syncWriter{w: &sb}
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", sb.String())
}

func TestRenderTable(t *testing.T) {
	var sb strings.Builder
	renderTable(&sb, []string{"ID", "TITLE"}, [][]string{{"1", "友達"}, {"22", "Work"}})

	assert.Equal(t, "ID  TITLE\n--  -----\n1   友達\n22  Work\n", sb.String())
}
