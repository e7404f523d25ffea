// Package docstore reads the raw decision documents: one immutable text
// blob per record, keyed by the record's stable identifier. Documents are
// produced by the acquisition collaborator; this pipeline never writes them.
package docstore

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound marks a record with no stored document. Callers skip the
// record rather than failing the run.
var ErrNotFound = errors.New("docstore: document not found")

// Store is a read-only document source.
type Store interface {
	// Get returns the raw document text for a record ID, or ErrNotFound.
	Get(ctx context.Context, recordID string) (string, error)
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Driver is "dir" (default) or "sqlite".
	Driver string
	// Dir is the documents directory for the dir driver.
	Dir string
	// Path is the database file for the sqlite driver.
	Path string
}

// Open builds the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "dir":
		return NewDirStore(cfg.Dir)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, eris.Errorf("docstore: unknown driver %q", cfg.Driver)
	}
}
