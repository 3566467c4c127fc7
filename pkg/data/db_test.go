package data

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	db, err := GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInit_EmptyPath(t *testing.T) {
	err := Init("")
	assert.Error(t, err)
}

func TestInit_RecordsSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	require.NoError(t, Init(dbPath))
	db, err := GetDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	assert.NoError(t, err)
	assert.Greater(t, version, 0)
}

func TestInit_Idempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	require.NoError(t, Init(dbPath))
	assert.NoError(t, Init(dbPath))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b", "c"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "d"))
	assert.False(t, Contains[string](nil, "a"))
}

func TestInit_CreatesRunSchema(t *testing.T) {
	db := setupTestDB(t)

	objects := map[string]string{
		"run":                "table",
		"idx_run_created_at": "index",
		"idx_run_mode":       "index",
	}
	for name, kind := range objects {
		var got string
		err := db.QueryRow("SELECT type FROM sqlite_master WHERE name = ?", name).Scan(&got)
		require.NoError(t, err, name)
		assert.Equal(t, kind, got, name)
	}

	rows, err := db.Query("SELECT name FROM pragma_table_info('run') ORDER BY cid")
	require.NoError(t, err)
	defer rows.Close()
	cols := make([]string, 0)
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"id", "mode", "source", "model_version", "row_count",
		"default_count", "threshold", "mean_proba", "created_at"}, cols)
}

func TestInit_IdempotentKeepsRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, Init(dbPath))
	db, err := GetDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SaveRun(db, &Run{Mode: RunModeCLI, Rows: 1, Threshold: 0.5}))
	require.NoError(t, Init(dbPath))

	var n, versions int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM run").Scan(&n))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&versions))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, versions)
}
