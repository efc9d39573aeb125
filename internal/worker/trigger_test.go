package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"extrato/internal/amqp"
	"extrato/internal/core"
)

// scriptedAPI serves a fixed sequence of archive outcomes and records
// every call it receives.
type scriptedAPI struct {
	t        *testing.T
	outcomes []core.Outcome
	archives int
	backups  int
}

func (a *scriptedAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/archives", func(w http.ResponseWriter, r *http.Request) {
		if a.archives >= len(a.outcomes) {
			a.t.Fatalf("unexpected archive call %d", a.archives+1)
		}
		outcome := a.outcomes[a.archives]
		a.archives++

		status := http.StatusOK
		switch outcome {
		case core.OutcomeAlreadyExists:
			status = http.StatusConflict
		case core.OutcomePreconditionFailed:
			status = http.StatusPreconditionFailed
		case core.OutcomeRolledBack:
			status = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"outcome": outcome})
	})
	mux.HandleFunc("POST /api/backups", func(w http.ResponseWriter, r *http.Request) {
		a.backups++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	return mux
}

func newScriptedTrigger(t *testing.T, outcomes ...core.Outcome) (*Trigger, *scriptedAPI) {
	t.Helper()
	api := &scriptedAPI{t: t, outcomes: outcomes}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	tr := NewTrigger(Config{
		APIBaseURL:  srv.URL,
		Interval:    time.Hour,
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		Client:      srv.Client(),
	})
	tr.now = func() time.Time { return time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC) }
	tr.sleep = func(context.Context, time.Duration) error { return nil }
	return tr, api
}

func TestArchivePreviousMonth_Success(t *testing.T) {
	tr, api := newScriptedTrigger(t, core.OutcomeSuccess)

	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("ArchivePreviousMonth() error = %v", err)
	}
	if api.archives != 1 {
		t.Errorf("archive calls = %d, want 1", api.archives)
	}
	if !tr.isDone(core.Period{Year: 2025, Month: 9}) {
		t.Error("September should be marked done")
	}

	// A second tick for the same month does not call the API again.
	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("second tick error = %v", err)
	}
	if api.archives != 1 {
		t.Errorf("archive calls after second tick = %d, want 1", api.archives)
	}
}

func TestArchivePreviousMonth_CreatesMissingBackup(t *testing.T) {
	tr, api := newScriptedTrigger(t, core.OutcomePreconditionFailed, core.OutcomeSuccess)

	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("ArchivePreviousMonth() error = %v", err)
	}
	if api.backups != 1 {
		t.Errorf("backup calls = %d, want 1", api.backups)
	}
	if api.archives != 2 {
		t.Errorf("archive calls = %d, want 2", api.archives)
	}
}

func TestArchivePreviousMonth_RetriesRollback(t *testing.T) {
	tr, api := newScriptedTrigger(t,
		core.OutcomeRolledBack, core.OutcomeRolledBack, core.OutcomeSuccess)

	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("ArchivePreviousMonth() error = %v", err)
	}
	if api.archives != 3 {
		t.Errorf("archive calls = %d, want 3", api.archives)
	}
}

func TestArchivePreviousMonth_GivesUp(t *testing.T) {
	tr, api := newScriptedTrigger(t,
		core.OutcomeRolledBack, core.OutcomeRolledBack,
		core.OutcomeRolledBack, core.OutcomeRolledBack)

	if err := tr.ArchivePreviousMonth(context.Background()); err == nil {
		t.Fatal("should give up after max attempts")
	}
	if api.archives != 4 {
		t.Errorf("archive calls = %d, want 4", api.archives)
	}
	if tr.isDone(core.Period{Year: 2025, Month: 9}) {
		t.Error("failed period must not be marked done")
	}
}

func TestArchivePreviousMonth_AlreadyExistsIsTerminal(t *testing.T) {
	tr, api := newScriptedTrigger(t, core.OutcomeAlreadyExists)

	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("ArchivePreviousMonth() error = %v", err)
	}
	if api.archives != 1 {
		t.Errorf("archive calls = %d, want 1", api.archives)
	}
	if !tr.isDone(core.Period{Year: 2025, Month: 9}) {
		t.Error("already archived period should be marked done")
	}
}

func TestHandleRunMessage(t *testing.T) {
	tr, api := newScriptedTrigger(t)
	p := core.Period{Year: 2025, Month: 9}

	if err := tr.HandleRunMessage(amqp.NewArchiveRunMessage(p, core.OutcomeRolledBack, "c-1", core.RecordCounts{})); err != nil {
		t.Fatal(err)
	}
	if tr.isDone(p) {
		t.Error("rolled-back message must not mark the period done")
	}

	if err := tr.HandleRunMessage(amqp.NewArchiveRunMessage(p, core.OutcomeSuccess, "c-2", core.RecordCounts{})); err != nil {
		t.Fatal(err)
	}
	if !tr.isDone(p) {
		t.Error("success message should mark the period done")
	}

	// The next tick skips the API entirely.
	if err := tr.ArchivePreviousMonth(context.Background()); err != nil {
		t.Fatalf("tick after message error = %v", err)
	}
	if api.archives != 0 {
		t.Errorf("archive calls = %d, want 0", api.archives)
	}
}

func TestBackoffDelay(t *testing.T) {
	tr := NewTrigger(Config{BaseDelay: time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{12, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := tr.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
