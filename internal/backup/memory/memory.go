// Package memory is an in-memory artifact backend for tests and local
// development without a disk or Sheets dependency.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"extrato/internal/backup"
	"extrato/internal/core"
)

type Store struct {
	mu        sync.Mutex
	artifacts map[core.Period]backup.Artifact
}

var (
	_ backup.ArtifactWriter = (*Store)(nil)
	_ backup.ArtifactReader = (*Store)(nil)
)

func New() *Store {
	return &Store{artifacts: make(map[core.Period]backup.Artifact)}
}

func (s *Store) Write(_ context.Context, p core.Period, rows [][]string) (backup.Manifest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if art, ok := s.artifacts[p]; ok {
		return art.Manifest, true, nil
	}

	m := backup.NewManifest(p, rows, time.Now())
	header := make([]string, len(backup.Header))
	copy(header, backup.Header)
	s.artifacts[p] = backup.Artifact{Header: header, Rows: rows, Manifest: m}
	return m, false, nil
}

func (s *Store) Open(_ context.Context, p core.Period) (backup.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.artifacts[p]
	if !ok {
		return backup.Artifact{}, fmt.Errorf("%w: %s", backup.ErrNotFound, p)
	}
	return art, nil
}

// Corrupt replaces the stored artifact wholesale, for verifier tests.
func (s *Store) Corrupt(p core.Period, art backup.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[p] = art
}
