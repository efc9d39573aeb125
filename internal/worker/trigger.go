package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"extrato/internal/amqp"
	"extrato/internal/core"
)

// Trigger closes the previous calendar month through the archive API.
// It fires on a fixed interval as a safety net, so a missed tick (the
// process was down at month rollover) is retried on the next one.
type Trigger struct {
	client      *http.Client
	baseURL     string
	interval    time.Duration
	maxAttempts int
	baseDelay   time.Duration

	mu   sync.Mutex
	done map[core.Period]bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type Config struct {
	APIBaseURL  string
	Interval    time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	Client      *http.Client
}

func NewTrigger(cfg Config) *Trigger {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Trigger{
		client:      client,
		baseURL:     cfg.APIBaseURL,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		done:        make(map[core.Period]bool),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Run loops until the context is cancelled, archiving the previous
// month once per tick. The first attempt happens immediately.
func (t *Trigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if err := t.ArchivePreviousMonth(ctx); err != nil {
		slog.ErrorContext(ctx, "Archive attempt failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Trigger stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := t.ArchivePreviousMonth(ctx); err != nil {
				slog.ErrorContext(ctx, "Archive attempt failed", "error", err)
			}
		}
	}
}

// ArchivePreviousMonth archives the month before the current one,
// retrying retryable outcomes with exponential backoff.
func (t *Trigger) ArchivePreviousMonth(ctx context.Context) error {
	p := core.PeriodOf(t.now()).Previous()

	if t.isDone(p) {
		slog.DebugContext(ctx, "Period already archived, skipping", "year", p.Year, "month", p.Month)
		return nil
	}

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, t.backoffDelay(attempt)); err != nil {
				return err
			}
		}

		outcome, err := t.runArchive(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "Archive request failed",
				"year", p.Year, "month", p.Month, "attempt", attempt+1, "error", err)
			continue
		}

		switch outcome {
		case core.OutcomeSuccess, core.OutcomeAlreadyExists:
			t.markDone(p)
			slog.InfoContext(ctx, "Period closed",
				"year", p.Year, "month", p.Month, "outcome", outcome)
			return nil

		case core.OutcomePreconditionFailed:
			slog.InfoContext(ctx, "Backup missing, creating it",
				"year", p.Year, "month", p.Month)
			if err := t.createBackup(ctx, p); err != nil {
				slog.WarnContext(ctx, "Backup request failed",
					"year", p.Year, "month", p.Month, "error", err)
			}

		case core.OutcomeRolledBack:
			slog.WarnContext(ctx, "Archive rolled back, will retry",
				"year", p.Year, "month", p.Month, "attempt", attempt+1)
		}
	}

	return fmt.Errorf("archive %s: gave up after %d attempts", p, t.maxAttempts)
}

// HandleRunMessage marks a period as closed when another process
// reports a terminal outcome over AMQP.
func (t *Trigger) HandleRunMessage(msg *amqp.ArchiveRunMessage) error {
	switch msg.Outcome {
	case core.OutcomeSuccess, core.OutcomeAlreadyExists:
		t.markDone(msg.Period())
	}
	return nil
}

func (t *Trigger) isDone(p core.Period) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done[p]
}

func (t *Trigger) markDone(p core.Period) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[p] = true
}

// backoffDelay doubles the base delay per attempt, capped at 5 minutes.
func (t *Trigger) backoffDelay(attempt int) time.Duration {
	d := t.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}

type archiveRequest struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Force bool `json:"force,omitempty"`
}

type archiveReply struct {
	Outcome core.Outcome `json:"outcome"`
	Error   string       `json:"error,omitempty"`
}

func (t *Trigger) runArchive(ctx context.Context, p core.Period) (core.Outcome, error) {
	reply, status, err := t.post(ctx, "/api/archives", archiveRequest{Year: p.Year, Month: p.Month})
	if err != nil {
		return "", err
	}
	if !reply.Outcome.Valid() {
		return "", fmt.Errorf("archive API returned status %d without an outcome", status)
	}
	return reply.Outcome, nil
}

func (t *Trigger) createBackup(ctx context.Context, p core.Period) error {
	_, status, err := t.post(ctx, "/api/backups", archiveRequest{Year: p.Year, Month: p.Month})
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("backup API returned status %d", status)
	}
	return nil
}

func (t *Trigger) post(ctx context.Context, path string, body archiveRequest) (archiveReply, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return archiveReply{}, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return archiveReply{}, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return archiveReply{}, 0, fmt.Errorf("call archive API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return archiveReply{}, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	var reply archiveReply
	if len(data) > 0 {
		// Error envelopes have no outcome field; that is handled by
		// the caller via Outcome.Valid.
		_ = json.Unmarshal(data, &reply)
	}
	return reply, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
