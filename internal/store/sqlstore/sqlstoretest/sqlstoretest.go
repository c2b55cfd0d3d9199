// Package sqlstoretest opens throwaway SQLite-backed stores for tests.
package sqlstoretest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store/sqlstore"
)

// New returns an initialized store in a fresh temp directory that accepts
// the given types. The store is closed when the test ends.
func New(t testing.TB, types ...string) *sqlstore.Store {
	t.Helper()
	s, _ := NewAt(t, filepath.Join(t.TempDir(), "tokens.db"), types...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

// NewAt opens (without initializing) a store on the database file at path and
// returns it with the path, so a test can open a second handle on the same
// file to play the part of another process.
func NewAt(t testing.TB, path string, types ...string) (*sqlstore.Store, string) {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.Options{
		Driver: "sqlite",
		DSN:    path,
		Types:  model.NewTypeSet(types...),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}
