// Package reply renders dialogue outcomes into outbound chat payloads.
//
// Every function is pure: the same inputs always produce the same payload.
// Currency always renders with two decimals and timestamps use a fixed
// day/month layout in the composer's display zone.
package reply

import (
	"fmt"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/intent"
)

// Kind is the outbound payload shape.
type Kind string

const (
	Text   Kind = "text"
	Button Kind = "button"
)

// TimestampLayout is the display layout for entry timestamps.
const TimestampLayout = "02/01 15:04"

// DeleteButtonLabel labels the action attached to a recorded entry.
const DeleteButtonLabel = "🗑️ Excluir"

// EmptyStatement is shown instead of an empty entry list.
const EmptyStatement = "Nenhum lançamento registrado ainda."

// Payload is what the sender collaborator delivers to the channel.
type Payload struct {
	Address       string `json:"address"`
	Kind          Kind   `json:"kind"`
	Text          string `json:"text"`
	ButtonLabel   string `json:"button_label,omitempty"`
	ButtonPayload string `json:"button_payload,omitempty"`
}

type Composer struct {
	loc   *time.Location
	limit int
}

// NewComposer builds a composer rendering timestamps in loc (UTC when nil)
// and listing at most limit statement entries (DefaultStatementLimit when
// limit is not positive).
func NewComposer(loc *time.Location, limit int) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	if limit <= 0 {
		limit = core.DefaultStatementLimit
	}
	return &Composer{loc: loc, limit: limit}
}

// Limit is the maximum number of entries a statement lists.
func (c *Composer) Limit() int { return c.limit }

// Recorded confirms a new entry and attaches the delete button for it.
func (c *Composer) Recorded(address string, tx core.Transaction) Payload {
	return newBuilder(address).
		Line("✅ Gasto registrado!").
		Blank().
		Linef("💰 %s", tx.Amount).
		Linef("🏷️ %s", tx.Category).
		Linef("🕒 %s", c.timestamp(tx.CreatedAt)).
		Linef("🆔 %s", tx.ShortID).
		Button(DeleteButtonLabel, intent.DeletePayload(tx.ShortID)).
		Build()
}

// Statement lists the running total and the newest entries, capped at the
// composer limit regardless of how many entries st carries.
func (c *Composer) Statement(address string, st core.Statement) Payload {
	b := newBuilder(address).
		Line("📊 *Extrato*").
		Blank().
		Linef("Total: *%s*", st.Total).
		Blank()

	if len(st.Recent) == 0 {
		return b.Line(EmptyStatement).Build()
	}

	entries := st.Recent
	if len(entries) > c.limit {
		entries = entries[:c.limit]
	}
	b.Linef("Últimos %d lançamentos:", len(entries))
	for _, tx := range entries {
		b.Linef("%s · %s · %s (%s)", c.timestamp(tx.CreatedAt), tx.Amount, tx.Category, tx.ShortID)
	}
	return b.Blank().
		Line("Para apagar, envie \"excluir <código>\".").
		Build()
}

// Deleted confirms a removal. Text and button deletions share this wording.
func (c *Composer) Deleted(address, shortID string) Payload {
	return newBuilder(address).
		Linef("🗑️ Lançamento %s excluído.", shortID).
		Build()
}

// NotFound reports a delete that matched nothing owned by the user.
func (c *Composer) NotFound(address, shortID string) Payload {
	return newBuilder(address).
		Linef("⚠️ Lançamento %s não encontrado.", shortID).
		Build()
}

// Menu explains the available commands. A greeting addresses the user by
// name; anything else is answered as an unrecognized message.
func (c *Composer) Menu(address, displayName string, greeting bool) Payload {
	b := newBuilder(address)
	if greeting {
		b.Linef("Olá %s! 👋 Bem-vindo ao Cofrinho 🐷", core.NormalizeDisplayName(displayName))
	} else {
		b.Line("Desculpe, não entendi. 🤔")
	}
	return b.Blank().
		Line("Como usar:").
		Line("• *25,90 almoço* registra um gasto").
		Line("• *extrato* mostra o total e os últimos lançamentos").
		Line("• *excluir ABC12* apaga um lançamento").
		Build()
}

// Failure is the generic answer when the event could not be processed.
func (c *Composer) Failure(address string) Payload {
	return newBuilder(address).
		Line("😕 Não consegui processar sua mensagem agora. Tente novamente em instantes.").
		Build()
}

func (c *Composer) timestamp(t time.Time) string {
	return t.In(c.loc).Format(TimestampLayout)
}

// TextPayload builds a plain text payload, used for manual sends from the dashboard.
func TextPayload(address, text string) Payload {
	return Payload{Address: address, Kind: Text, Text: text}
}

// String renders the payload for the message log.
func (p Payload) String() string {
	if p.Kind == Button {
		return fmt.Sprintf("%s [%s]", p.Text, p.ButtonLabel)
	}
	return p.Text
}
