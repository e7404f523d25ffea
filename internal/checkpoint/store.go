// Package checkpoint persists each completed batch's extraction results
// immediately, independent of the final merge. Units are append-only JSON
// files named by monotonically increasing sequence numbers; a unit is never
// mutated after creation, so concurrent batch workers need no coordination
// beyond atomic file creation.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Sasuke-inu/immi-case/internal/model"
)

// archiveDir is where consumed checkpoints are moved after a merge.
const archiveDir = "applied"

var checkpointName = regexp.MustCompile(`^checkpoint-(\d{6})\.json$`)

// Checkpoint is one durable unit: a batch sequence number and its results.
type Checkpoint struct {
	Seq       int                      `json:"seq"`
	CreatedAt time.Time                `json:"created_at"`
	Results   []model.ExtractionResult `json:"results"`
}

// Store writes and reads checkpoint units under one directory.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "checkpoint: create dir")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write durably persists results as the next checkpoint unit and returns its
// sequence number. Creation uses O_EXCL, so concurrent writers racing for
// the same sequence number collide on the filesystem and simply advance to
// the next free number.
func (s *Store) Write(results []model.ExtractionResult) (int, error) {
	seq := s.nextSeq()
	for {
		cp := Checkpoint{Seq: seq, CreatedAt: time.Now().UTC(), Results: results}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return 0, eris.Wrap(err, "checkpoint: marshal")
		}

		f, err := os.OpenFile(s.path(seq), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			seq++
			continue
		}
		if err != nil {
			return 0, eris.Wrap(err, "checkpoint: create unit")
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return 0, eris.Wrap(err, "checkpoint: write unit")
		}
		if err := f.Close(); err != nil {
			return 0, eris.Wrap(err, "checkpoint: close unit")
		}
		return seq, nil
	}
}

// List returns the sequence numbers of all outstanding (unarchived)
// checkpoints in ascending order.
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: read dir")
	}
	var seqs []int
	for _, e := range entries {
		m := checkpointName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seqs = append(seqs, n)
	}
	sort.Ints(seqs)
	return seqs, nil
}

// Load reads one checkpoint unit.
func (s *Store) Load(seq int) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(seq))
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read unit %d", seq)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode unit %d", seq)
	}
	return &cp, nil
}

// LoadAll reads every outstanding checkpoint in sequence order.
func (s *Store) LoadAll() ([]*Checkpoint, error) {
	seqs, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(seqs))
	for _, seq := range seqs {
		cp, err := s.Load(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Archive moves consumed checkpoints into the applied/ subdirectory after a
// successful merge, so a later merge run no longer sees them as
// outstanding. The units themselves are preserved for audit.
func (s *Store) Archive(seqs []int) error {
	dst := filepath.Join(s.dir, archiveDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return eris.Wrap(err, "checkpoint: create archive dir")
	}
	for _, seq := range seqs {
		name := fmt.Sprintf("checkpoint-%06d.json", seq)
		if err := os.Rename(s.path(seq), filepath.Join(dst, name)); err != nil {
			return eris.Wrapf(err, "checkpoint: archive unit %d", seq)
		}
	}
	return nil
}

func (s *Store) path(seq int) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint-%06d.json", seq))
}

func (s *Store) nextSeq() int {
	seqs, err := s.List()
	if err != nil || len(seqs) == 0 {
		return s.nextArchivedSeq()
	}
	return seqs[len(seqs)-1] + 1
}

// nextArchivedSeq keeps sequence numbers monotonic across merges by
// consulting the archive when the live directory is empty.
func (s *Store) nextArchivedSeq() int {
	entries, err := os.ReadDir(filepath.Join(s.dir, archiveDir))
	if err != nil {
		return 1
	}
	max := 0
	for _, e := range entries {
		m := checkpointName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
