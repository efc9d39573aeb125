package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"extrato/internal/archive"
	"extrato/internal/backup"
	"extrato/internal/backup/memory"
	"extrato/internal/core"
	"extrato/internal/services"
	"extrato/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "extrato.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := memory.New()
	verifier := backup.NewVerifier(store, repo)
	coord, err := archive.New(repo, verifier, archive.DefaultConfig())
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	svc := services.NewArchiveService(repo, store, coord, nil)
	return NewServer(":0", repo, svc)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func seedViaAPI(t *testing.T, srv *Server) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/payments", map[string]any{
		"date": "2025-09-10", "amount": "450.00", "client_name": "Ana", "artist_name": "Bia", "method": "pix",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]int64](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/commissions", map[string]any{
		"date": "2025-09-10", "amount": "135.00", "artist_name": "Bia",
		"payment_id": created["id"], "percent": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create commission: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/expenses", map[string]any{
		"date": "2025-09-20", "amount": "80.00", "category": "aluguel",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRecordValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"bad json field", "/api/payments", map[string]any{"noise": true}, http.StatusBadRequest},
		{"bad amount", "/api/payments", map[string]any{"date": "2025-09-10", "amount": "tons"}, http.StatusUnprocessableEntity},
		{"bad date", "/api/expenses", map[string]any{"date": "10/09/2025", "amount": "10.00"}, http.StatusUnprocessableEntity},
		{"session without client", "/api/sessions", map[string]any{"date": "2025-09-10", "amount": "10.00"}, http.StatusUnprocessableEntity},
		{"commission without payment", "/api/commissions", map[string]any{"date": "2025-09-10", "amount": "10.00", "percent": 30}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestArchiveFlow(t *testing.T) {
	srv := newTestServer(t)
	seedViaAPI(t, srv)

	// Archival before the backup exists must hit the precondition gate.
	rec := doJSON(t, srv, http.MethodPost, "/api/archives", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("archive without backup: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/backups", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusCreated {
		t.Fatalf("backup: %d %s", rec.Code, rec.Body.String())
	}

	// Repeating the backup is accepted.
	rec = doJSON(t, srv, http.MethodPost, "/api/backups", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat backup: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/archives", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: %d %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[archiveResponse](t, rec)
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if res.CorrelationID == "" {
		t.Error("correlation id missing")
	}
	if res.Counts.Total() != 3 {
		t.Errorf("counts = %+v", res.Counts)
	}

	// Second run is a conflict, not a rerun.
	rec = doJSON(t, srv, http.MethodPost, "/api/archives", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat archive: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/statements/2025/9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get statement: %d %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[core.MonthlyStatement](t, rec)
	if st.Totais.ReceitaTotal != 45000 {
		t.Errorf("receita_total = %d", st.Totais.ReceitaTotal)
	}
	if st.Totais.ReceitaLiquida != 45000-13500-8000 {
		t.Errorf("receita_liquida = %d", st.Totais.ReceitaLiquida)
	}

	// The period is now empty.
	rec = doJSON(t, srv, http.MethodGet, "/api/periods/2025/9/records", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list records: %d", rec.Code)
	}
	rs := decodeBody[core.RecordSet](t, rec)
	if !rs.Empty() {
		t.Errorf("live records after archive: %+v", rs.Counts())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/runs?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list runs: %d", rec.Code)
	}
	runs := decodeBody[[]core.RunLedgerEntry](t, rec)
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if runs[0].Outcome != core.OutcomeAlreadyExists || runs[2].Outcome != core.OutcomePreconditionFailed {
		t.Errorf("run outcomes = %v, %v, %v", runs[0].Outcome, runs[1].Outcome, runs[2].Outcome)
	}
}

func TestGetStatementNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/statements/2024/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPeriodPathValidation(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/statements/abc/9", "/api/statements/2025/13"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestRunsLimitValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/runs?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Server.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	ip := "10.0.0.1:1234"
	for i := 0; i < 60; i++ {
		if !rl.allow(ip) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow(ip) {
		t.Error("request 61 within a minute should be limited")
	}
	if !rl.allow("10.0.0.2:1234") {
		t.Error("other clients are not affected")
	}
}

func TestStatementCacheInvalidatedOnForceRerun(t *testing.T) {
	srv := newTestServer(t)
	seedViaAPI(t, srv)

	doJSON(t, srv, http.MethodPost, "/api/backups", map[string]any{"year": 2025, "month": 9})
	rec := doJSON(t, srv, http.MethodPost, "/api/archives", map[string]any{"year": 2025, "month": 9})
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: %d", rec.Code)
	}

	// Prime the cache.
	doJSON(t, srv, http.MethodGet, "/api/statements/2025/9", nil)
	if _, ok := srv.statementCache.Get(cacheKey(core.Period{Year: 2025, Month: 9})); !ok {
		t.Fatal("statement should be cached after a read")
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/archives", map[string]any{"year": 2025, "month": 9, "force": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("force rerun: %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := srv.statementCache.Get(cacheKey(core.Period{Year: 2025, Month: 9})); ok {
		t.Error("cache entry should be dropped after a force rerun")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/nothing/%d", 1), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
