package backup

import (
	"context"
	"errors"

	"extrato/internal/core"
)

// ErrNotFound is returned by readers when no artifact exists for the
// requested period.
var ErrNotFound = errors.New("backup artifact not found")

// Artifact is one opened export: its header, data rows and manifest.
type Artifact struct {
	Header   []string
	Rows     [][]string
	Manifest Manifest
}

// Ports for artifact backends.
type (
	// ArtifactWriter creates the durable export for one period.
	// Creating twice for the same period is not an error; the second
	// write reports exists=true and leaves the artifact untouched.
	ArtifactWriter interface {
		Write(ctx context.Context, p core.Period, rows [][]string) (m Manifest, exists bool, err error)
	}

	// ArtifactReader opens an existing export for verification.
	ArtifactReader interface {
		Open(ctx context.Context, p core.Period) (Artifact, error)
	}

	// LiveCounter reports how many live records a period currently
	// has, for the best-effort row-count consistency check.
	LiveCounter interface {
		CountPeriodRecords(ctx context.Context, p core.Period) (int, error)
	}
)
