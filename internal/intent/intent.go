// Package intent turns an inbound chat message or button click into a typed
// Intent using an ordered list of rules. The first rule that matches wins.
package intent

import (
	"regexp"
	"strings"

	"cofrinho/internal/core"
)

// Kind tags the Intent variant.
type Kind int

const (
	Noop Kind = iota
	RecordExpense
	ShowStatement
	DeleteEntry
	ShowMenu
)

func (k Kind) String() string {
	switch k {
	case RecordExpense:
		return "record_expense"
	case ShowStatement:
		return "show_statement"
	case DeleteEntry:
		return "delete_entry"
	case ShowMenu:
		return "show_menu"
	default:
		return "noop"
	}
}

// Source records which entry point produced a DeleteEntry. It is informational
// only: both sources are executed by the same deletion routine.
type Source string

const (
	FromText   Source = "text"
	FromButton Source = "button"
)

const (
	// DeletePayloadPrefix prefixes the payload of every delete button.
	DeletePayloadPrefix = "del_"
	// legacyDeletePayloadPrefix is accepted for buttons sent by older builds.
	legacyDeletePayloadPrefix = "delete:"
)

// Intent is the transient result of classification.
type Intent struct {
	Kind     Kind
	Amount   core.Money // RecordExpense
	Category string     // RecordExpense
	ShortID  string     // DeleteEntry
	Source   Source
	Greeting bool // ShowMenu requested with a greeting word
}

// Input is the classifier's view of an inbound event.
type Input struct {
	Text          string
	IsButton      bool
	ButtonPayload string
}

// DeletePayload builds the button payload that deletes shortID.
func DeletePayload(shortID string) string {
	return DeletePayloadPrefix + shortID
}

var (
	reExpense    = regexp.MustCompile(`(?s)^(\d+(?:[.,]\d*)?)\s+(\S.*)$`)
	reTextDelete = regexp.MustCompile(`(?i)^(?:excluir|apagar|deletar)\s+(\S+)$`)

	statementWords = map[string]struct{}{
		"extrato": {},
		"saldo":   {},
		"ver":     {},
		"total":   {},
		"resumo":  {},
	}

	greetingWords = map[string]struct{}{
		"oi":   {},
		"olá":  {},
		"ola":  {},
		"menu": {},
	}
)

// rule inspects an input and reports whether it produced an intent.
type rule func(Input) (Intent, bool)

// rules is evaluated in order; see Classify.
var rules = []rule{
	buttonDelete,
	recordExpense,
	statement,
	textDelete,
}

// Classify maps an input to exactly one Intent. Priority:
//
//  1. button payload "del_<id>"            -> DeleteEntry
//  2. text "<amount> <description>"         -> RecordExpense (amount > 0)
//  3. text statement synonym                -> ShowStatement
//  4. text "excluir <id>"                   -> DeleteEntry
//  5. any other text -> ShowMenu; any other button -> Noop
//
// Malformed amounts never surface as errors; they fall through to later rules.
func Classify(in Input) Intent {
	for _, r := range rules {
		if it, ok := r(in); ok {
			return it
		}
	}
	if in.IsButton {
		return Intent{Kind: Noop}
	}
	_, greeting := greetingWords[normalize(in.Text)]
	return Intent{Kind: ShowMenu, Greeting: greeting}
}

func buttonDelete(in Input) (Intent, bool) {
	if !in.IsButton {
		return Intent{}, false
	}
	payload := strings.TrimSpace(in.ButtonPayload)
	for _, prefix := range []string{DeletePayloadPrefix, legacyDeletePayloadPrefix} {
		if token, ok := strings.CutPrefix(payload, prefix); ok {
			token = core.NormalizeShortID(token)
			if token == "" {
				return Intent{}, false
			}
			return Intent{Kind: DeleteEntry, ShortID: token, Source: FromButton}, true
		}
	}
	return Intent{}, false
}

func recordExpense(in Input) (Intent, bool) {
	if in.IsButton {
		return Intent{}, false
	}
	m := reExpense.FindStringSubmatch(strings.TrimSpace(in.Text))
	if m == nil {
		return Intent{}, false
	}
	amount, err := core.ParseAmount(m[1])
	if err != nil {
		return Intent{}, false
	}
	category := strings.TrimSpace(m[2])
	if err := (core.Transaction{Amount: amount, Category: category}).Validate(); err != nil {
		return Intent{}, false
	}
	return Intent{Kind: RecordExpense, Amount: amount, Category: category}, true
}

func statement(in Input) (Intent, bool) {
	if in.IsButton {
		return Intent{}, false
	}
	if _, ok := statementWords[normalize(in.Text)]; !ok {
		return Intent{}, false
	}
	return Intent{Kind: ShowStatement}, true
}

func textDelete(in Input) (Intent, bool) {
	if in.IsButton {
		return Intent{}, false
	}
	m := reTextDelete.FindStringSubmatch(strings.TrimSpace(in.Text))
	if m == nil {
		return Intent{}, false
	}
	return Intent{Kind: DeleteEntry, ShortID: core.NormalizeShortID(m[1]), Source: FromText}, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
