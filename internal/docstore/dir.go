package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DirStore reads documents from a directory of <record-id>.txt files.
type DirStore struct {
	dir string
}

// NewDirStore validates the directory exists.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrap(err, "docstore: stat dir")
	}
	if !info.IsDir() {
		return nil, eris.Errorf("docstore: %s is not a directory", dir)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Get(_ context.Context, recordID string) (string, error) {
	// Record IDs are derived from citations and never contain separators,
	// but reject anything path-like outright.
	if recordID == "" || strings.ContainsAny(recordID, `/\`) {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, recordID+".txt"))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrapf(err, "docstore: read %s", recordID)
	}
	return string(data), nil
}

func (s *DirStore) Close() error {
	return nil
}
