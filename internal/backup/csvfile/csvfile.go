// Package csvfile stores backup artifacts as CSV files on local disk,
// one data file plus one JSON manifest per period.
package csvfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"extrato/internal/backup"
	"extrato/internal/core"
)

type Store struct {
	dir string
}

var (
	_ backup.ArtifactWriter = (*Store)(nil)
	_ backup.ArtifactReader = (*Store)(nil)
)

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) dataPath(p core.Period) string {
	return filepath.Join(s.dir, fmt.Sprintf("backup_%04d_%02d.csv", p.Year, p.Month))
}

func (s *Store) manifestPath(p core.Period) string {
	return filepath.Join(s.dir, fmt.Sprintf("backup_%04d_%02d.manifest.json", p.Year, p.Month))
}

// Write creates the artifact for a period. An existing artifact is left
// untouched and reported via exists; callers treat both as acceptable
// before archival. The data file lands via rename so a crashed write
// never leaves a half artifact behind.
func (s *Store) Write(ctx context.Context, p core.Period, rows [][]string) (backup.Manifest, bool, error) {
	if _, err := os.Stat(s.dataPath(p)); err == nil {
		m, err := s.readManifest(p)
		if err != nil {
			return backup.Manifest{}, true, fmt.Errorf("existing artifact has unreadable manifest: %w", err)
		}
		slog.InfoContext(ctx, "Backup artifact already exists",
			"year", p.Year, "month", p.Month, "rows", m.Rows)
		return m, true, nil
	}

	m := backup.NewManifest(p, rows, time.Now())

	tmp, err := os.CreateTemp(s.dir, "backup_*.csv.tmp")
	if err != nil {
		return backup.Manifest{}, false, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(backup.Header); err != nil {
		tmp.Close()
		return backup.Manifest{}, false, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return backup.Manifest{}, false, fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return backup.Manifest{}, false, fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return backup.Manifest{}, false, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return backup.Manifest{}, false, fmt.Errorf("close artifact: %w", err)
	}

	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return backup.Manifest{}, false, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(s.manifestPath(p), mb, 0644); err != nil {
		return backup.Manifest{}, false, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.dataPath(p)); err != nil {
		return backup.Manifest{}, false, fmt.Errorf("finalize artifact: %w", err)
	}

	slog.InfoContext(ctx, "Backup artifact written",
		"year", p.Year, "month", p.Month, "rows", m.Rows, "sha256", m.SHA256)
	return m, false, nil
}

// Open loads the artifact and manifest for verification.
func (s *Store) Open(_ context.Context, p core.Period) (backup.Artifact, error) {
	f, err := os.Open(s.dataPath(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return backup.Artifact{}, fmt.Errorf("%w: %s", backup.ErrNotFound, p)
		}
		return backup.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return backup.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		return backup.Artifact{}, fmt.Errorf("artifact %s is empty", p)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // width is validated row by row upstream
	records, err := r.ReadAll()
	if err != nil {
		return backup.Artifact{}, fmt.Errorf("parse artifact csv: %w", err)
	}
	if len(records) == 0 {
		return backup.Artifact{}, fmt.Errorf("artifact %s has no header row", p)
	}

	m, err := s.readManifest(p)
	if err != nil {
		return backup.Artifact{}, err
	}

	return backup.Artifact{
		Header:   records[0],
		Rows:     records[1:],
		Manifest: m,
	}, nil
}

func (s *Store) readManifest(p core.Period) (backup.Manifest, error) {
	b, err := os.ReadFile(s.manifestPath(p))
	if err != nil {
		return backup.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m backup.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return backup.Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
