package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"450.00", 45000, false},
		{"450,00", 45000, false},
		{"450", 45000, false},
		{"0.01", 1, false},
		{"12.345", 1234, false}, // third decimal rounds half-up
		{"12.346", 1235, false},
		{",50", 50, false},
		{"", 0, true},
		{"0", 0, true},
		{"0.00", 0, true},
		{"-5", 0, true},
		{"+5", 0, true},
		{"abc", 0, true},
		{"1.2.3", 0, true},
		{"12a.00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalToCents(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{45000, "R$ 450.00"},
		{105000, "R$ 1050.00"},
		{1, "R$ 0.01"},
		{-2500, "-R$ 25.00"},
		{0, "R$ 0.00"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := Money{Cents: 45000}
	b := Money{Cents: 13500}
	if got := a.Add(b); got.Cents != 58500 {
		t.Errorf("Add = %d", got.Cents)
	}
	if got := a.Sub(b); got.Cents != 31500 {
		t.Errorf("Sub = %d", got.Cents)
	}
	if (Money{Cents: 45000}).Reais() != 450.0 {
		t.Error("Reais conversion wrong")
	}
}
