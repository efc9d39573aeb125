package archive

import (
	"errors"
	"testing"
	"time"

	"extrato/internal/core"
)

var septDate = time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

func septRecords() core.RecordSet {
	return core.RecordSet{
		Payments: []core.Payment{
			{ID: 1, Date: septDate, Amount: core.Money{Cents: 45000}, ArtistName: "Bia", Method: "pix"},
			{ID: 2, Date: septDate, Amount: core.Money{Cents: 32000}, ArtistName: "Bia", Method: "cartão"},
			{ID: 3, Date: septDate, Amount: core.Money{Cents: 28000}, ArtistName: "Caio", Method: "pix"},
		},
		Sessions: []core.Session{
			{ID: 1, Date: septDate, Amount: core.Money{Cents: 99999}, ClientName: "Ana"},
			{ID: 2, Date: septDate, Amount: core.Money{Cents: 88888}, ClientName: "Duda"},
			{ID: 3, Date: septDate, Amount: core.Money{Cents: 77777}, ClientName: "Eva"},
		},
		Commissions: []core.Commission{
			{ID: 1, Date: septDate, Amount: core.Money{Cents: 13500}, ArtistName: "Bia", PaymentID: 1, Percent: 30},
			{ID: 2, Date: septDate, Amount: core.Money{Cents: 8000}, ArtistName: "Bia", PaymentID: 2, Percent: 25},
			{ID: 3, Date: septDate, Amount: core.Money{Cents: 9800}, ArtistName: "Caio", PaymentID: 3, Percent: 35},
		},
	}
}

func TestComputeTotals_HappyPath(t *testing.T) {
	// September 2025 scenario: 3 payments (450 + 320 + 280),
	// commissions at 30/25/35 percent, no expenses.
	got, err := ComputeTotals(septRecords(), 100)
	if err != nil {
		t.Fatalf("ComputeTotals() error = %v", err)
	}

	if got.ReceitaTotal != 105000 {
		t.Errorf("receita_total = %d, want 105000", got.ReceitaTotal)
	}
	if got.ComissoesTotal != 31300 {
		t.Errorf("comissoes_total = %d, want 31300", got.ComissoesTotal)
	}
	if got.DespesasTotal != 0 {
		t.Errorf("despesas_total = %d, want 0", got.DespesasTotal)
	}
	if got.ReceitaLiquida != 105000-31300 {
		t.Errorf("receita_liquida = %d, want %d", got.ReceitaLiquida, 105000-31300)
	}
}

func TestComputeTotals_RevenueCountsPaymentsOnce(t *testing.T) {
	// Sessions carry deliberately absurd amounts; gross revenue must
	// depend on payment amounts only.
	rs := septRecords()
	got, err := ComputeTotals(rs, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceitaTotal != 105000 {
		t.Errorf("receita_total = %d, session amounts leaked into revenue", got.ReceitaTotal)
	}

	rs.Sessions = nil
	gotNoSessions, err := ComputeTotals(rs, 100)
	if err != nil {
		t.Fatal(err)
	}
	if gotNoSessions.ReceitaTotal != got.ReceitaTotal {
		t.Errorf("revenue changed with sessions removed: %d vs %d", gotNoSessions.ReceitaTotal, got.ReceitaTotal)
	}
}

func TestComputeTotals_Breakdowns(t *testing.T) {
	rs := septRecords()
	rs.Payments = append(rs.Payments, core.Payment{ID: 4, Date: septDate, Amount: core.Money{Cents: 10000}})
	rs.Expenses = []core.Expense{
		{ID: 1, Date: septDate, Amount: core.Money{Cents: 5000}, Category: "material"},
		{ID: 2, Date: septDate, Amount: core.Money{Cents: 3000}, Category: "material"},
		{ID: 3, Date: septDate, Amount: core.Money{Cents: 2000}},
	}

	got, err := ComputeTotals(rs, 100)
	if err != nil {
		t.Fatal(err)
	}

	wantArtists := []core.ArtistShare{
		{Artist: "Bia", Amount: 77000},
		{Artist: "Caio", Amount: 28000},
		{Artist: Uncategorized, Amount: 10000},
	}
	if len(got.PorArtista) != len(wantArtists) {
		t.Fatalf("por_artista has %d entries, want %d: %+v", len(got.PorArtista), len(wantArtists), got.PorArtista)
	}
	for i, want := range wantArtists {
		if got.PorArtista[i] != want {
			t.Errorf("por_artista[%d] = %+v, want %+v", i, got.PorArtista[i], want)
		}
	}

	methods := map[string]int64{}
	for _, m := range got.PorFormaPagamento {
		methods[m.Method] = m.Amount
	}
	if methods["pix"] != 73000 || methods["cartão"] != 32000 || methods[Uncategorized] != 10000 {
		t.Errorf("por_forma_pagamento = %+v", got.PorFormaPagamento)
	}

	categories := map[string]int64{}
	for _, c := range got.GastosPorCategoria {
		categories[c.Category] = c.Amount
	}
	if categories["material"] != 8000 || categories[Uncategorized] != 2000 {
		t.Errorf("gastos_por_categoria = %+v", got.GastosPorCategoria)
	}
	if got.DespesasTotal != 10000 {
		t.Errorf("despesas_total = %d, want 10000", got.DespesasTotal)
	}
	if got.ReceitaLiquida != 115000-31300-10000 {
		t.Errorf("receita_liquida = %d", got.ReceitaLiquida)
	}
}

func TestComputeTotals_EmptySet(t *testing.T) {
	got, err := ComputeTotals(core.RecordSet{}, 100)
	if err != nil {
		t.Fatalf("empty period must compute a valid zero summary: %v", err)
	}
	if got.ReceitaTotal != 0 || got.ComissoesTotal != 0 || got.DespesasTotal != 0 || got.ReceitaLiquida != 0 {
		t.Errorf("zero-record summary = %+v", got)
	}
	if len(got.PorArtista) != 0 || len(got.PorFormaPagamento) != 0 || len(got.GastosPorCategoria) != 0 {
		t.Errorf("zero-record summary should have no breakdowns: %+v", got)
	}
}

func TestComputeTotals_BatchEquivalence(t *testing.T) {
	rs := septRecords()
	want, err := ComputeTotals(rs, len(rs.Payments)+5)
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range []int{1, 2, 3, len(rs.Payments), len(rs.Payments) + 5} {
		got, err := ComputeTotals(rs, size)
		if err != nil {
			t.Fatalf("batch size %d: %v", size, err)
		}
		if got.ReceitaTotal != want.ReceitaTotal ||
			got.ComissoesTotal != want.ComissoesTotal ||
			got.ReceitaLiquida != want.ReceitaLiquida {
			t.Errorf("batch size %d changed totals: %+v vs %+v", size, got, want)
		}
	}
}

func TestComputeTotals_NegativeAmountAborts(t *testing.T) {
	rs := septRecords()
	rs.Payments[1].Amount.Cents = -100

	_, err := ComputeTotals(rs, 100)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount must abort with ErrInvalidAmount, got %v", err)
	}
}
