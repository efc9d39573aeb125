package core

import "time"

// Run outcomes. Every archival attempt resolves to exactly one of
// these; callers never see a raw internal error.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeAlreadyExists      Outcome = "already-exists"
	OutcomePreconditionFailed Outcome = "precondition-failed"
	OutcomeRolledBack         Outcome = "rolled-back"
)

type (
	Outcome string

	// ArtistShare is one line of the per-artist revenue breakdown.
	ArtistShare struct {
		Artist string `json:"artista"`
		Amount int64  `json:"valor_cents"`
	}

	// MethodShare is one line of the per-payment-method breakdown.
	MethodShare struct {
		Method string `json:"forma_pagamento"`
		Amount int64  `json:"valor_cents"`
	}

	// CategoryShare is one line of the expense-by-category breakdown.
	CategoryShare struct {
		Category string `json:"categoria"`
		Amount   int64  `json:"valor_cents"`
	}

	// TotalsSummary carries the computed financial aggregates of one
	// statement. Field names follow the persisted snapshot shape.
	TotalsSummary struct {
		ReceitaTotal       int64           `json:"receita_total"`
		ComissoesTotal     int64           `json:"comissoes_total"`
		DespesasTotal      int64           `json:"despesas_total"`
		ReceitaLiquida     int64           `json:"receita_liquida"`
		PorArtista         []ArtistShare   `json:"por_artista"`
		PorFormaPagamento  []MethodShare   `json:"por_forma_pagamento"`
		GastosPorCategoria []CategoryShare `json:"gastos_por_categoria"`
	}

	// MonthlyStatement is the immutable monthly snapshot ("extrato"):
	// the full serialized record set plus totals. At most one exists
	// per period unless a force overwrite replaces it whole.
	MonthlyStatement struct {
		Year      int           `json:"year"`
		Month     int           `json:"month"`
		Records   RecordSet     `json:"records"`
		Totais    TotalsSummary `json:"totais"`
		CreatedAt time.Time     `json:"created_at"`
	}

	// RunLedgerEntry is one row of the append-only audit log of
	// archival attempts. Written for every run, whatever the outcome.
	RunLedgerEntry struct {
		ID            int64        `json:"id"`
		Year          int          `json:"year"`
		Month         int          `json:"month"`
		CorrelationID string       `json:"correlation_id"`
		StartedAt     time.Time    `json:"started_at"`
		FinishedAt    time.Time    `json:"finished_at"`
		Outcome       Outcome      `json:"outcome"`
		Counts        RecordCounts `json:"counts"`
		Detail        string       `json:"detail,omitempty"`
	}
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeAlreadyExists, OutcomePreconditionFailed, OutcomeRolledBack:
		return true
	}
	return false
}

func (s MonthlyStatement) Period() Period {
	return Period{Year: s.Year, Month: s.Month}
}
