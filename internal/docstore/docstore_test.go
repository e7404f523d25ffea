package docstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "1318275-2014-rrta-842.txt"),
		[]byte("DECISION RECORD\n..."), 0o644))

	store, err := NewDirStore(dir)
	require.NoError(t, err)
	defer store.Close()

	body, err := store.Get(context.Background(), "1318275-2014-rrta-842")
	require.NoError(t, err)
	assert.Equal(t, "DECISION RECORD\n...", body)

	_, err = store.Get(context.Background(), "no-such-record")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirStore_RejectsPathLikeIDs(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../etc/passwd", `..\win`, "a/b"} {
		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestNewDirStore_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := NewDirStore(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scrape.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE documents (record_id TEXT PRIMARY KEY, body TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO documents (record_id, body) VALUES (?, ?)`, "r1", "DECISION RECORD")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	body, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "DECISION RECORD", body)

	_, err = store.Get(context.Background(), "r2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := Open(Config{Driver: "dir", Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(Config{Driver: "mongodb"})
	assert.Error(t, err)
}
