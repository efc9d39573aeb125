package services

import (
	"context"
	"fmt"
	"log/slog"

	"extrato/internal/amqp"
	"extrato/internal/archive"
	"extrato/internal/backup"
	"extrato/internal/core"
	"extrato/internal/storage"
)

// ArchiveService orchestrates backup creation and archival runs across
// SQLite, the backup backend and AMQP.
type ArchiveService struct {
	storage     *storage.SQLiteRepository
	writer      backup.ArtifactWriter
	coordinator *archive.Coordinator
	amqpClient  *amqp.Client
}

func NewArchiveService(storage *storage.SQLiteRepository, writer backup.ArtifactWriter, coordinator *archive.Coordinator, amqpClient *amqp.Client) *ArchiveService {
	return &ArchiveService{
		storage:     storage,
		writer:      writer,
		coordinator: coordinator,
		amqpClient:  amqpClient,
	}
}

// CreateBackup exports the period's live records to the backup backend.
// Writing a backup that already exists is not an error.
func (s *ArchiveService) CreateBackup(ctx context.Context, p core.Period) (backup.Manifest, bool, error) {
	if err := p.Validate(); err != nil {
		return backup.Manifest{}, false, err
	}

	rs, err := s.storage.QueryPeriod(ctx, p)
	if err != nil {
		return backup.Manifest{}, false, fmt.Errorf("query period: %w", err)
	}

	rows := backup.EncodeRows(rs)
	manifest, exists, err := s.writer.Write(ctx, p, rows)
	if err != nil {
		return backup.Manifest{}, false, fmt.Errorf("write backup: %w", err)
	}

	slog.InfoContext(ctx, "Backup written",
		"year", p.Year,
		"month", p.Month,
		"rows", manifest.Rows,
		"already_existed", exists)

	return manifest, exists, nil
}

// RunArchive runs the archival pipeline for the period and publishes
// the outcome. A publish failure never fails the run.
func (s *ArchiveService) RunArchive(ctx context.Context, p core.Period, force bool) (archive.Result, error) {
	res, err := s.coordinator.Run(ctx, p, force)
	if err != nil {
		return res, err
	}

	if err := s.publishRunMessage(ctx, p, res); err != nil {
		slog.ErrorContext(ctx, "Failed to publish archive run message",
			"year", p.Year, "month", p.Month, "error", err)
		// Don't fail the run - the outcome is already in the ledger
	}

	return res, nil
}

// GetStatement returns a persisted monthly statement.
func (s *ArchiveService) GetStatement(ctx context.Context, p core.Period) (core.MonthlyStatement, error) {
	return s.storage.GetStatement(ctx, p)
}

// ListRuns returns the most recent archival runs, newest first.
func (s *ArchiveService) ListRuns(ctx context.Context, limit int) ([]core.RunLedgerEntry, error) {
	return s.storage.ListRuns(ctx, limit)
}

func (s *ArchiveService) publishRunMessage(ctx context.Context, p core.Period, res archive.Result) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping run message")
		return nil
	}

	msg := amqp.NewArchiveRunMessage(p, res.Outcome, res.CorrelationID, res.Counts)
	return s.amqpClient.PublishArchiveRun(ctx, msg)
}

// Close closes both storage and AMQP connections
func (s *ArchiveService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close archive service: %v", errs)
	}

	return nil
}
