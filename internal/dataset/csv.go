// Package dataset owns the canonical dataset: a tabular CSV file with one
// row per case record. This core reads it to compute pending work and writes
// it back through an atomic merge; the document-acquisition and dashboard
// collaborators produce and consume the same file.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Sasuke-inu/immi-case/internal/model"
)

// Columns is the canonical column order: the record ID, identity fields,
// then every extraction target.
var Columns = func() []string {
	cols := []string{"id"}
	cols = append(cols, model.IdentityFields...)
	cols = append(cols, model.TargetFields...)
	return cols
}()

// Dataset is the in-memory canonical dataset plus its file location.
type Dataset struct {
	Path    string
	Records []model.CaseRecord

	// ExtraColumns are header columns the collaborators added that this
	// core does not know about. They ride along untouched: loaded into
	// record fields, written back after the canonical columns.
	ExtraColumns []string

	byID map[string]int
}

// Load reads the dataset CSV. Columns outside the canonical set belong to
// the collaborators; their values are carried through load and save
// unmodified. Rows without an id derive one from the citation.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.ToLower(header[i]))
	}

	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}
	ds := &Dataset{Path: path, byID: make(map[string]int)}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if h == "" || known[h] || seen[h] {
			continue
		}
		seen[h] = true
		ds.ExtraColumns = append(ds.ExtraColumns, h)
		zap.L().Debug("dataset: carrying collaborator column", zap.String("column", h))
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read row")
		}

		rec := model.CaseRecord{Fields: make(map[string]string, len(header))}
		for i, h := range header {
			if i >= len(row) {
				break
			}
			v := strings.TrimSpace(row[i])
			if h == "id" {
				rec.ID = v
				continue
			}
			if h != "" && v != "" {
				rec.Fields[h] = v
			}
		}
		if rec.ID == "" {
			rec.ID = model.RecordID(rec.Fields[model.FieldCitation])
		}
		if rec.ID == "" {
			continue
		}
		if _, dup := ds.byID[rec.ID]; dup {
			zap.L().Warn("dataset: duplicate record id, keeping first", zap.String("id", rec.ID))
			continue
		}
		ds.byID[rec.ID] = len(ds.Records)
		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

// Get returns the record for id, or nil.
func (d *Dataset) Get(id string) *model.CaseRecord {
	i, ok := d.byID[id]
	if !ok {
		return nil
	}
	return &d.Records[i]
}

// PendingFilter narrows which records count as pending work.
type PendingFilter struct {
	// Tribunal keeps only records whose tribunal field equals this code.
	Tribunal string
	// Fields restricts the emptiness check to these target fields; empty
	// means all targets.
	Fields []string
	// Limit caps the number of pending records returned; 0 means no cap.
	Limit int
	// IncludeComplete selects records even when no target field is empty.
	// Overwrite runs use this to re-derive occupied fields.
	IncludeComplete bool
}

// Pending recomputes pending work from the current dataset state: every
// record with at least one empty target field. This, not a run manifest, is
// the resume mechanism — a restart naturally skips anything already merged.
func (d *Dataset) Pending(filter PendingFilter) []model.CaseRecord {
	fields := filter.Fields
	if len(fields) == 0 {
		fields = model.TargetFields
	}

	var out []model.CaseRecord
	for _, rec := range d.Records {
		if filter.Tribunal != "" && !strings.EqualFold(rec.Get(model.FieldTribunal), filter.Tribunal) {
			continue
		}
		if filter.IncludeComplete {
			out = append(out, rec)
		} else {
			for _, f := range fields {
				if rec.Get(f) == "" {
					out = append(out, rec)
					break
				}
			}
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Backup copies the dataset file to path+".bak" before any destructive
// write. An existing backup is overwritten: the backup always reflects the
// state immediately before the most recent merge.
func (d *Dataset) Backup() (string, error) {
	src, err := os.Open(d.Path)
	if err != nil {
		return "", eris.Wrap(err, "dataset: open for backup")
	}
	defer src.Close()

	bak := d.Path + ".bak"
	dst, err := os.Create(bak)
	if err != nil {
		return "", eris.Wrap(err, "dataset: create backup")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", eris.Wrap(err, "dataset: copy backup")
	}
	if err := dst.Close(); err != nil {
		return "", eris.Wrap(err, "dataset: close backup")
	}
	return bak, nil
}

// Save writes the dataset atomically: a temporary file in the same
// directory, then rename over the original, so an interruption mid-write
// cannot leave a corrupted dataset.
func (d *Dataset) Save() error {
	tmp, err := os.CreateTemp(filepath.Dir(d.Path), ".cases-*.csv")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	header := append(append([]string{}, Columns...), d.ExtraColumns...)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: write header")
	}
	row := make([]string, len(header))
	for _, rec := range d.Records {
		row[0] = rec.ID
		for i, col := range header[1:] {
			row[i+1] = rec.Fields[col]
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return eris.Wrap(err, "dataset: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: flush")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: sync temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "dataset: close temp")
	}

	if err := os.Rename(tmpName, d.Path); err != nil {
		return eris.Wrap(err, "dataset: rename over original")
	}
	return nil
}
