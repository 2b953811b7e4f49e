package google

import (
	"testing"
	"time"

	"cofrinho/internal/core"
)

func TestTransactionRow(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	tx := core.Transaction{
		ShortID:   "ABCDE",
		UserID:    12,
		Amount:    core.Money{Cents: 1050},
		Category:  "padaria",
		CreatedAt: time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC),
	}

	row := transactionRow(tx, loc)

	want := []any{"ABCDE", "12", "01/03/2025 12:30", 10.5, "padaria"}
	if len(row) != len(want) {
		t.Fatalf("row has %d cells, want %d", len(row), len(want))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d = %#v, want %#v", i, row[i], want[i])
		}
	}
}

func TestTransactionRow_KeepsTextLiteral(t *testing.T) {
	tx := core.Transaction{
		ShortID:  "01234",
		UserID:   7,
		Amount:   core.Money{Cents: 100},
		Category: `=IMPORTDATA("http://x")`,
	}
	row := transactionRow(tx, nil)
	if row[0] != "01234" {
		t.Errorf("short id cell = %#v", row[0])
	}
	if row[4] != `=IMPORTDATA("http://x")` {
		t.Errorf("category cell = %#v", row[4])
	}
	if got := findRow([][]any{{"Código"}, {row[0]}}, "01234"); got != 1 {
		t.Errorf("findRow on written row = %d, want 1", got)
	}
}

func TestTransactionRow_NilLocationIsUTC(t *testing.T) {
	tx := core.Transaction{ShortID: "X", CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)}
	if got := transactionRow(tx, nil)[2]; got != "02/01/2025 03:04" {
		t.Errorf("timestamp = %v", got)
	}
}

func TestFindRow(t *testing.T) {
	values := [][]any{
		{"Código", "Usuário"},
		{},
		{"ABCDE", "1"},
		{" fghij ", "2"},
		{"'01234", "3"},
		{"12E34", "4"},
	}
	tests := []struct {
		id   string
		want int
	}{
		{"01234", 4},
		{"12E34", 5},
		{"ABCDE", 2},
		{"abcde", 2},
		{"FGHIJ", 3},
		{"ZZZZZ", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := findRow(values, tt.id); got != tt.want {
			t.Errorf("findRow(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestSheetRange(t *testing.T) {
	tests := map[string]string{
		"Lancamentos": "Lancamentos!A:E",
		"Meus gastos": "'Meus gastos'!A:E",
		"Ana's sheet": "'Ana''s sheet'!A:E",
	}
	for sheet, want := range tests {
		if got := sheetRange(sheet, "A:E"); got != want {
			t.Errorf("sheetRange(%q) = %q, want %q", sheet, got, want)
		}
	}
	if got := rowRef("Lancamentos", 2); got != "Lancamentos!A3:E3" {
		t.Errorf("rowRef = %q", got)
	}
}
