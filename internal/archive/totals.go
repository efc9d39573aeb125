package archive

import (
	"fmt"
	"sort"

	"extrato/internal/batch"
	"extrato/internal/core"
)

// Uncategorized is the bucket for records missing an artist, payment
// method or expense category tag. Untagged records are aggregated here,
// never dropped.
const Uncategorized = "não categorizado"

// ComputeTotals derives the financial aggregates of one period's record
// set. Pure: no store access, no mutation of rs.
//
// Gross revenue counts each payment exactly once. Sessions represent
// scheduled work whose money arrives as a payment, so session amounts
// never enter revenue; summing both would double-count the same money.
// Net revenue is defined here, and only here, as
// gross revenue - total commissions - total expenses.
//
// Negative amounts are a data-quality problem and abort the
// computation, letting the enclosing transaction roll back.
func ComputeTotals(rs core.RecordSet, batchSize int) (core.TotalsSummary, error) {
	var t core.TotalsSummary

	receita, err := batch.SumInt64(rs.Payments, batchSize, func(p core.Payment) (int64, error) {
		if p.Amount.Cents < 0 {
			return 0, fmt.Errorf("%w: payment %d has negative amount %d", core.ErrInvalidAmount, p.ID, p.Amount.Cents)
		}
		return p.Amount.Cents, nil
	})
	if err != nil {
		return t, fmt.Errorf("sum payments: %w", err)
	}

	comissoes, err := batch.SumInt64(rs.Commissions, batchSize, func(c core.Commission) (int64, error) {
		if c.Amount.Cents < 0 {
			return 0, fmt.Errorf("%w: commission %d has negative amount %d", core.ErrInvalidAmount, c.ID, c.Amount.Cents)
		}
		return c.Amount.Cents, nil
	})
	if err != nil {
		return t, fmt.Errorf("sum commissions: %w", err)
	}

	despesas, err := batch.SumInt64(rs.Expenses, batchSize, func(e core.Expense) (int64, error) {
		if e.Amount.Cents < 0 {
			return 0, fmt.Errorf("%w: expense %d has negative amount %d", core.ErrInvalidAmount, e.ID, e.Amount.Cents)
		}
		return e.Amount.Cents, nil
	})
	if err != nil {
		return t, fmt.Errorf("sum expenses: %w", err)
	}

	t.ReceitaTotal = receita
	t.ComissoesTotal = comissoes
	t.DespesasTotal = despesas
	t.ReceitaLiquida = receita - comissoes - despesas

	porArtista, err := sumByTag(rs.Payments, batchSize, func(p core.Payment) (string, int64) {
		return p.ArtistName, p.Amount.Cents
	})
	if err != nil {
		return t, fmt.Errorf("breakdown by artist: %w", err)
	}
	for _, kv := range porArtista {
		t.PorArtista = append(t.PorArtista, core.ArtistShare{Artist: kv.tag, Amount: kv.amount})
	}

	porForma, err := sumByTag(rs.Payments, batchSize, func(p core.Payment) (string, int64) {
		return p.Method, p.Amount.Cents
	})
	if err != nil {
		return t, fmt.Errorf("breakdown by payment method: %w", err)
	}
	for _, kv := range porForma {
		t.PorFormaPagamento = append(t.PorFormaPagamento, core.MethodShare{Method: kv.tag, Amount: kv.amount})
	}

	porCategoria, err := sumByTag(rs.Expenses, batchSize, func(e core.Expense) (string, int64) {
		return e.Category, e.Amount.Cents
	})
	if err != nil {
		return t, fmt.Errorf("breakdown by expense category: %w", err)
	}
	for _, kv := range porCategoria {
		t.GastosPorCategoria = append(t.GastosPorCategoria, core.CategoryShare{Category: kv.tag, Amount: kv.amount})
	}

	return t, nil
}

type tagAmount struct {
	tag    string
	amount int64
}

// sumByTag aggregates amounts under a string tag, routing empty tags to
// the Uncategorized bucket. Output is sorted by tag for stable results.
func sumByTag[T any](records []T, batchSize int, extract func(T) (string, int64)) ([]tagAmount, error) {
	sums, err := batch.Process(records, batchSize,
		func(chunk []T) (map[string]int64, error) {
			out := make(map[string]int64, len(chunk))
			for _, r := range chunk {
				tag, amount := extract(r)
				if tag == "" {
					tag = Uncategorized
				}
				out[tag] += amount
			}
			return out, nil
		},
		func(a, b map[string]int64) map[string]int64 {
			for k, v := range b {
				a[k] += v
			}
			return a
		},
	)
	if err != nil {
		return nil, err
	}

	out := make([]tagAmount, 0, len(sums))
	for tag, amount := range sums {
		out = append(out, tagAmount{tag: tag, amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tag < out[j].tag })
	return out, nil
}
