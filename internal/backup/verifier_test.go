package backup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"extrato/internal/core"
)

// memReader is a minimal in-package artifact double so the verifier
// tests do not depend on a concrete backend package.
type memReader struct {
	artifacts map[core.Period]Artifact
}

func newMemReader() *memReader {
	return &memReader{artifacts: make(map[core.Period]Artifact)}
}

func (r *memReader) put(p core.Period, art Artifact) {
	r.artifacts[p] = art
}

func (r *memReader) Open(_ context.Context, p core.Period) (Artifact, error) {
	art, ok := r.artifacts[p]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return art, nil
}

type fixedCounter struct {
	n   int
	err error
}

func (c fixedCounter) CountPeriodRecords(context.Context, core.Period) (int, error) {
	return c.n, c.err
}

func validArtifact(p core.Period) Artifact {
	rows := EncodeRows(sampleSet())
	return Artifact{
		Header:   Header,
		Rows:     rows,
		Manifest: NewManifest(p, rows, time.Now()),
	}
}

func TestVerifier_Valid(t *testing.T) {
	p := core.Period{Year: 2025, Month: 9}
	reader := newMemReader()
	reader.put(p, validArtifact(p))

	v := NewVerifier(reader, fixedCounter{n: 4})
	if !v.Verify(context.Background(), p) {
		t.Error("valid artifact should verify")
	}
}

func TestVerifier_MissingArtifact(t *testing.T) {
	v := NewVerifier(newMemReader(), nil)
	if v.Verify(context.Background(), core.Period{Year: 2025, Month: 9}) {
		t.Error("missing artifact must fail verification")
	}
}

func TestVerifier_CorruptArtifacts(t *testing.T) {
	p := core.Period{Year: 2025, Month: 9}

	tests := []struct {
		name   string
		mutate func(a Artifact) Artifact
	}{
		{"wrong header column", func(a Artifact) Artifact {
			h := make([]string, len(a.Header))
			copy(h, a.Header)
			h[0] = "kind"
			a.Header = h
			return a
		}},
		{"truncated header", func(a Artifact) Artifact {
			a.Header = a.Header[:3]
			return a
		}},
		{"corrupt row", func(a Artifact) Artifact {
			rows := make([][]string, len(a.Rows))
			copy(rows, a.Rows)
			bad := make([]string, len(rows[0]))
			copy(bad, rows[0])
			bad[3] = "not-a-number"
			rows[0] = bad
			a.Rows = rows
			return a
		}},
		{"manifest row count lies", func(a Artifact) Artifact {
			a.Manifest.Rows = a.Manifest.Rows + 1
			return a
		}},
		{"checksum mismatch", func(a Artifact) Artifact {
			a.Manifest.SHA256 = "deadbeef"
			return a
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := newMemReader()
			reader.put(p, tt.mutate(validArtifact(p)))
			v := NewVerifier(reader, nil)
			if v.Verify(context.Background(), p) {
				t.Error("corrupt artifact must fail verification")
			}
		})
	}
}

func TestVerifier_ZeroDataRowsIsValid(t *testing.T) {
	// A month can legitimately have no records; an empty (but well
	// formed) backup still passes.
	p := core.Period{Year: 2025, Month: 2}
	reader := newMemReader()
	reader.put(p, Artifact{
		Header:   Header,
		Rows:     nil,
		Manifest: NewManifest(p, nil, time.Now()),
	})

	v := NewVerifier(reader, fixedCounter{n: 0})
	if !v.Verify(context.Background(), p) {
		t.Error("header-only artifact should verify")
	}
}

func TestVerifier_LiveCountMismatchIsSoft(t *testing.T) {
	// Records may have changed since the export; a count mismatch
	// warns but does not block archival.
	p := core.Period{Year: 2025, Month: 9}
	reader := newMemReader()
	reader.put(p, validArtifact(p))

	v := NewVerifier(reader, fixedCounter{n: 99})
	if !v.Verify(context.Background(), p) {
		t.Error("live count mismatch must not fail verification")
	}

	v = NewVerifier(reader, fixedCounter{err: fmt.Errorf("db down")})
	if !v.Verify(context.Background(), p) {
		t.Error("live count error must not fail verification")
	}
}
