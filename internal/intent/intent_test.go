package intent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofrinho/internal/core"
)

func text(s string) Input { return Input{Text: s} }

func button(payload string) Input { return Input{IsButton: true, ButtonPayload: payload} }

func TestClassify_RecordExpense(t *testing.T) {
	tests := []struct {
		in       string
		cents    int64
		category string
	}{
		{"50 mercado", 5000, "mercado"},
		{"10,50 padaria", 1050, "padaria"},
		{"10.50 padaria", 1050, "padaria"},
		{"  7   uber para casa  ", 700, "uber para casa"},
		{"12.345 café", 1235, "café"},
		{"3 1 2", 300, "1 2"},
		{"100 total", 10000, "total"},
		{"10, almoço", 1000, "almoço"},
		{"10. café", 1000, "café"},
		{"1000000000 casa", 100_000_000_000, "casa"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Classify(text(tt.in))
			require.Equal(t, RecordExpense, got.Kind)
			assert.Equal(t, tt.cents, got.Amount.Cents)
			assert.Equal(t, tt.category, got.Category)
		})
	}
}

func TestClassify_RecordExpenseProperty(t *testing.T) {
	for cents := int64(1); cents < 100000; cents += 997 {
		amount := core.Money{Cents: cents}
		in := fmt.Sprintf("%d.%02d lanche %d", cents/100, cents%100, cents)
		got := Classify(text(in))
		require.Equal(t, RecordExpense, got.Kind, in)
		assert.Equal(t, amount, got.Amount)
		assert.Equal(t, fmt.Sprintf("lanche %d", cents), got.Category)
	}
}

func TestClassify_InvalidAmountsFallToMenu(t *testing.T) {
	for _, in := range []string{"abc", "-5 food", "0 food", "0,00 food", "0.001 food", "50", "50 ", "R$50 mercado", "", "1000000000,01 iate", "46116860184273879.04 carro"} {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, ShowMenu, Classify(text(in)).Kind)
		})
	}
}

func TestClassify_Statement(t *testing.T) {
	for _, word := range []string{"extrato", "saldo", "ver", "total", "resumo"} {
		for _, variant := range []string{word, strings.ToUpper(word), "  " + strings.ToUpper(word[:1]) + word[1:] + " "} {
			assert.Equal(t, ShowStatement, Classify(text(variant)).Kind, variant)
		}
	}
	assert.Equal(t, ShowMenu, Classify(text("extrato completo")).Kind)
}

func TestClassify_Delete(t *testing.T) {
	fromText := Classify(text("excluir ABCDE"))
	fromButton := Classify(button("del_ABCDE"))

	require.Equal(t, DeleteEntry, fromText.Kind)
	require.Equal(t, DeleteEntry, fromButton.Kind)
	assert.Equal(t, fromText.ShortID, fromButton.ShortID)
	assert.Equal(t, FromText, fromText.Source)
	assert.Equal(t, FromButton, fromButton.Source)

	assert.Equal(t, "AB1CD", Classify(text("Excluir ab1cd")).ShortID)
	assert.Equal(t, "XYZ12", Classify(text("apagar XYZ12")).ShortID)
	assert.Equal(t, "XYZ12", Classify(button("delete:XYZ12")).ShortID)
	assert.Equal(t, "XYZ12", Classify(button(DeletePayload("XYZ12"))).ShortID)

	assert.Equal(t, ShowMenu, Classify(text("excluir")).Kind)
	assert.Equal(t, ShowMenu, Classify(text("excluir AB CD")).Kind)
}

func TestClassify_Greetings(t *testing.T) {
	for _, in := range []string{"oi", "Olá", "ola", " MENU "} {
		got := Classify(text(in))
		assert.Equal(t, ShowMenu, got.Kind, in)
		assert.True(t, got.Greeting, in)
	}
	assert.False(t, Classify(text("qualquer coisa")).Greeting)
}

func TestClassify_Buttons(t *testing.T) {
	assert.Equal(t, Noop, Classify(button("menu")).Kind)
	assert.Equal(t, Noop, Classify(button("del_")).Kind)
	assert.Equal(t, Noop, Classify(button("")).Kind)

	// Button events never fall into text rules, even if they carry text.
	got := Classify(Input{IsButton: true, Text: "50 mercado", ButtonPayload: "x"})
	assert.Equal(t, Noop, got.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "record_expense", RecordExpense.String())
	assert.Equal(t, "show_statement", ShowStatement.String())
	assert.Equal(t, "delete_entry", DeleteEntry.String())
	assert.Equal(t, "show_menu", ShowMenu.String())
	assert.Equal(t, "noop", Noop.String())
}

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Intent
	}{
		{
			name: "amount beats statement word",
			in:   text("5 extrato"),
			want: Intent{Kind: RecordExpense, Amount: core.Money{Cents: 500}, Category: "extrato"},
		},
		{
			name: "amount beats delete keyword",
			in:   text("2 excluir ABCDE"),
			want: Intent{Kind: RecordExpense, Amount: core.Money{Cents: 200}, Category: "excluir ABCDE"},
		},
		{
			name: "delete button ignores its title",
			in:   Input{IsButton: true, Text: "Excluir", ButtonPayload: "del_k9x2p"},
			want: Intent{Kind: DeleteEntry, ShortID: "K9X2P", Source: FromButton},
		},
		{
			name: "text delete",
			in:   text("deletar k9x2p"),
			want: Intent{Kind: DeleteEntry, ShortID: "K9X2P", Source: FromText},
		},
		{
			name: "greeting",
			in:   text("Oi"),
			want: Intent{Kind: ShowMenu, Greeting: true},
		},
		{
			name: "unmatched text",
			in:   text("quanto gastei?"),
			want: Intent{Kind: ShowMenu},
		},
		{
			name: "unknown button",
			in:   button("confirmar"),
			want: Intent{Kind: Noop},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Classify(tt.in)); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
