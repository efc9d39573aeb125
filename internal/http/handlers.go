package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"extrato/internal/backup"
	"extrato/internal/core"
	applog "extrato/internal/log"
	"extrato/internal/storage"
)

const dateLayout = "2006-01-02"

type recordRequest struct {
	Date       string  `json:"date"`
	Amount     string  `json:"amount"`
	ClientName string  `json:"client_name,omitempty"`
	ArtistName string  `json:"artist_name,omitempty"`
	Method     string  `json:"method,omitempty"`
	Category   string  `json:"category,omitempty"`
	PaymentID  int64   `json:"payment_id,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

func (req recordRequest) parseCommon() (time.Time, core.Money, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return time.Time{}, core.Money{}, core.ErrInvalidDate
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return time.Time{}, core.Money{}, err
	}
	return date, core.Money{Cents: cents}, nil
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, amount, err := req.parseCommon()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	p := core.Payment{
		Date:       date,
		Amount:     amount,
		ClientName: req.ClientName,
		ArtistName: req.ArtistName,
		Method:     req.Method,
		Notes:      req.Notes,
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.repo.CreatePayment(r.Context(), p)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create payment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save payment")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, amount, err := req.parseCommon()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sess := core.Session{
		Date:       date,
		Amount:     amount,
		ClientName: req.ClientName,
		ArtistName: req.ArtistName,
		Notes:      req.Notes,
	}
	if err := sess.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.repo.CreateSession(r.Context(), sess)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save session")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleCreateCommission(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, amount, err := req.parseCommon()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c := core.Commission{
		Date:       date,
		Amount:     amount,
		ArtistName: req.ArtistName,
		PaymentID:  req.PaymentID,
		Percent:    req.Percent,
		Notes:      req.Notes,
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.repo.CreateCommission(r.Context(), c)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create commission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save commission")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, amount, err := req.parseCommon()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	e := core.Expense{
		Date:     date,
		Amount:   amount,
		Category: req.Category,
		Method:   req.Method,
		Notes:    req.Notes,
	}
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.repo.CreateExpense(r.Context(), e)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create expense failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save expense")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleListPeriodRecords(w http.ResponseWriter, r *http.Request) {
	p, err := periodFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rs, err := s.repo.QueryPeriod(r.Context(), p)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Query period failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "could not load records")
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

type periodRequest struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Force bool `json:"force,omitempty"`
}

type backupResponse struct {
	Manifest       backup.Manifest `json:"manifest"`
	AlreadyExisted bool            `json:"already_existed"`
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := core.ValidPeriod(req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	manifest, existed, err := s.archives.CreateBackup(r.Context(), p)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Backup failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, backupResponse{Manifest: manifest, AlreadyExisted: existed})
}

type archiveResponse struct {
	Outcome       core.Outcome      `json:"outcome"`
	CorrelationID string            `json:"correlation_id"`
	Counts        core.RecordCounts `json:"counts"`
	Error         string            `json:"error,omitempty"`
}

func (s *Server) handleRunArchive(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := core.ValidPeriod(req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := s.archives.RunArchive(r.Context(), p, req.Force)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.structured.LogArchiveRun(r.Context(), p.Year, p.Month, string(res.Outcome), res.CorrelationID, res.Counts.Total())

	resp := archiveResponse{
		Outcome:       res.Outcome,
		CorrelationID: res.CorrelationID,
		Counts:        res.Counts,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	var status int
	switch res.Outcome {
	case core.OutcomeSuccess:
		s.statementCache.Delete(cacheKey(p))
		status = http.StatusOK
	case core.OutcomeAlreadyExists:
		status = http.StatusConflict
	case core.OutcomePreconditionFailed:
		status = http.StatusPreconditionFailed
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	p, err := periodFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if st, ok := s.statementCache.Get(cacheKey(p)); ok {
		writeJSON(w, http.StatusOK, st)
		return
	}

	st, err := s.archives.GetStatement(r.Context(), p)
	if err != nil {
		if errors.Is(err, storage.ErrStatementNotFound) {
			writeError(w, http.StatusNotFound, "no statement for "+p.String())
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Get statement failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "could not load statement")
		return
	}

	s.statementCache.Set(cacheKey(p), st)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	runs, err := s.archives.ListRuns(r.Context(), limit)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "List runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load runs")
		return
	}
	if runs == nil {
		runs = []core.RunLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, runs)
}
