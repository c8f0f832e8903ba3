package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gocontacts/internal/logger"
)

func TestFileWatcher_Matches(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "contacts.db")

	fw, err := NewFileWatcher(db, 0, NewHub(), logger.NewNop())
	require.NoError(t, err)
	defer fw.close()

	assert.True(t, fw.Matches(db))
	assert.True(t, fw.Matches(db+"-wal"))
	assert.True(t, fw.Matches(db+"-journal"))
	assert.False(t, fw.Matches(db+"-shm"))
	assert.False(t, fw.Matches(filepath.Join(dir, "other.db")))
}

func TestFileWatcher_PublishesDebouncedChange(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "contacts.db")
	require.NoError(t, os.WriteFile(db, []byte("x"), 0o600))

	h := NewHub()
	fw, err := NewFileWatcher(db, 10*time.Millisecond, h, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fw.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(db, []byte{byte(i)}, 0o600))
	}
	// unrelated files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	s, err := h.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, Change, s)
}

func TestNewFileWatcher_MissingDirectory(t *testing.T) {
	_, err := NewFileWatcher(filepath.Join(t.TempDir(), "nope", "contacts.db"), 0, NewHub(), logger.NewNop())
	assert.Error(t, err)
}
