// Package dialogue runs one inbound chat event through the bot: identify the
// user, classify the message, execute the intent against the ledger, compose
// the reply and dispatch it. It keeps no state between events, so any number
// of events may be handled concurrently.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/intent"
	"cofrinho/internal/log"
	"cofrinho/internal/reply"
)

// MediaPlaceholder is logged for inbound messages that carry no text.
const MediaPlaceholder = "[Mídia/Outros]"

// InboundEvent is the transport's view of one inbound message or click.
type InboundEvent struct {
	MessageID     string
	Address       string
	DisplayName   string
	IsButton      bool
	Text          string
	ButtonPayload string
}

type (
	Directory interface {
		Upsert(ctx context.Context, address, displayName string) (int64, error)
	}

	Ledger interface {
		Insert(ctx context.Context, userID int64, amount core.Money, category string) (core.Transaction, error)
		Delete(ctx context.Context, userID int64, shortID string) (bool, error)
		Sum(ctx context.Context, userID int64) (core.Money, error)
		Recent(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)
	}

	MessageLog interface {
		LogMessage(ctx context.Context, userID int64, direction core.Direction, body string) error
	}

	Sender interface {
		Send(ctx context.Context, p reply.Payload) error
	}
)

// Outcome summarizes what Handle did with an event.
type Outcome struct {
	UserID int64
	Intent intent.Intent
	Reply  *reply.Payload // nil when nothing was dispatched
}

type Orchestrator struct {
	directory Directory
	ledger    Ledger
	messages  MessageLog
	sender    Sender
	composer  *reply.Composer
	logger    *log.Logger
	events    *log.StructuredLogger
}

// New wires the orchestrator. messages may be nil to disable the message log.
func New(directory Directory, ledger Ledger, messages MessageLog, sender Sender, composer *reply.Composer, logger *log.Logger) *Orchestrator {
	if composer == nil {
		composer = reply.NewComposer(time.UTC, core.DefaultStatementLimit)
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentDialogue)
	return &Orchestrator{
		directory: directory,
		ledger:    ledger,
		messages:  messages,
		sender:    sender,
		composer:  composer,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// Handle processes one event. A directory failure drops the event without a
// reply. A ledger failure is answered with the generic failure reply and the
// error is returned so the transport can record it.
func (o *Orchestrator) Handle(ctx context.Context, ev InboundEvent) (Outcome, error) {
	start := time.Now()
	o.events.LogInbound(ctx, ev.MessageID, ev.Address, ev.IsButton)

	userID, err := o.directory.Upsert(ctx, ev.Address, ev.DisplayName)
	if err != nil {
		o.events.LogError(ctx, "Failed to identify user, dropping event", err,
			log.ErrorTypeDatabase, log.OpUpsert, log.NewFields().WithInbound(ev.MessageID, ev.Address))
		return Outcome{}, fmt.Errorf("identify user: %w", err)
	}
	out := Outcome{UserID: userID}

	o.logMessage(ctx, userID, core.Received, inboundBody(ev))

	out.Intent = intent.Classify(intent.Input{
		Text:          ev.Text,
		IsButton:      ev.IsButton,
		ButtonPayload: ev.ButtonPayload,
	})
	o.logger.DebugContext(ctx, "Intent classified",
		log.FieldUserID, userID,
		log.FieldIntent, out.Intent.Kind.String(),
		log.FieldOperation, log.OpClassify)

	payload, execErr := o.execute(ctx, userID, ev, out.Intent)
	if execErr != nil {
		errorType := log.ErrorTypeInternal
		switch {
		case errors.Is(execErr, context.DeadlineExceeded):
			errorType = log.ErrorTypeTimeout
		case errors.Is(execErr, core.ErrStore):
			errorType = log.ErrorTypeDatabase
		}
		o.events.LogError(ctx, "Failed to execute intent", execErr, errorType, ledgerOp(out.Intent.Kind),
			log.NewFields().WithUser(userID).WithIntent(out.Intent.Kind.String()))
		failure := o.composer.Failure(ev.Address)
		payload = &failure
	}

	if payload != nil {
		if err := o.dispatch(ctx, userID, *payload); err != nil {
			return out, errors.Join(execErr, err)
		}
		out.Reply = payload
	}

	o.events.LogHandled(ctx, ev.MessageID, userID, out.Intent.Kind.String(), time.Since(start))
	if execErr != nil {
		return out, fmt.Errorf("execute %s: %w", out.Intent.Kind, execErr)
	}
	return out, nil
}

// execute runs the intent against the ledger and returns the reply to send,
// or nil when the intent produces no reply.
func (o *Orchestrator) execute(ctx context.Context, userID int64, ev InboundEvent, it intent.Intent) (*reply.Payload, error) {
	var p reply.Payload
	switch it.Kind {
	case intent.RecordExpense:
		tx, err := o.ledger.Insert(ctx, userID, it.Amount, it.Category)
		if err != nil {
			return nil, err
		}
		o.events.LogTransactionRecorded(ctx, userID, tx.ShortID, tx.Amount.Cents, tx.Category)
		p = o.composer.Recorded(ev.Address, tx)

	case intent.ShowStatement:
		st, err := o.statement(ctx, userID)
		if err != nil {
			return nil, err
		}
		p = o.composer.Statement(ev.Address, st)

	case intent.DeleteEntry:
		var err error
		p, err = o.deleteEntry(ctx, userID, ev.Address, it.ShortID)
		if err != nil {
			return nil, err
		}

	case intent.ShowMenu:
		p = o.composer.Menu(ev.Address, ev.DisplayName, it.Greeting)

	default:
		o.logger.DebugContext(ctx, "Ignoring unrecognized button",
			log.FieldUserID, userID,
			"button_payload", ev.ButtonPayload)
		return nil, nil
	}
	return &p, nil
}

// deleteEntry is the single deletion routine for text and button requests.
func (o *Orchestrator) deleteEntry(ctx context.Context, userID int64, address, shortID string) (reply.Payload, error) {
	shortID = core.NormalizeShortID(shortID)
	removed, err := o.ledger.Delete(ctx, userID, shortID)
	if err != nil {
		return reply.Payload{}, err
	}
	if !removed {
		o.logger.InfoContext(ctx, "Delete matched no entry",
			log.FieldUserID, userID,
			log.FieldShortID, shortID,
			log.FieldOperation, log.OpDelete,
			log.FieldErrorType, log.ErrorTypeNotFound)
		return o.composer.NotFound(address, shortID), nil
	}
	o.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldUserID, userID,
		log.FieldShortID, shortID,
		log.FieldOperation, log.OpDelete)
	return o.composer.Deleted(address, shortID), nil
}

func (o *Orchestrator) statement(ctx context.Context, userID int64) (core.Statement, error) {
	total, err := o.ledger.Sum(ctx, userID)
	if err != nil {
		return core.Statement{}, err
	}
	recent, err := o.ledger.Recent(ctx, userID, o.composer.Limit())
	if err != nil {
		return core.Statement{}, err
	}
	return core.Statement{Total: total, Recent: recent}, nil
}

// Send delivers a payload outside of an inbound event, such as a manual
// message typed on the dashboard, and records it in the message log.
func (o *Orchestrator) Send(ctx context.Context, userID int64, p reply.Payload) error {
	return o.dispatch(ctx, userID, p)
}

func (o *Orchestrator) dispatch(ctx context.Context, userID int64, p reply.Payload) error {
	if err := o.sender.Send(ctx, p); err != nil {
		o.events.LogError(ctx, "Failed to send reply", err, log.ErrorTypeNetwork, log.OpSend,
			log.NewFields().WithUser(userID))
		return fmt.Errorf("send reply: %w", err)
	}
	if userID > 0 {
		o.logMessage(ctx, userID, core.Sent, p.String())
	}
	return nil
}

// logMessage never fails the event; the log is best effort.
func (o *Orchestrator) logMessage(ctx context.Context, userID int64, dir core.Direction, body string) {
	if o.messages == nil {
		return
	}
	if err := o.messages.LogMessage(ctx, userID, dir, body); err != nil {
		o.logger.WarnContext(ctx, "Failed to write message log",
			log.FieldUserID, userID,
			"direction", string(dir),
			log.FieldError, err)
	}
}

// ledgerOp names the ledger operation an intent performs.
func ledgerOp(k intent.Kind) string {
	switch k {
	case intent.RecordExpense:
		return log.OpCreate
	case intent.DeleteEntry:
		return log.OpDelete
	case intent.ShowStatement:
		return log.OpRead
	default:
		return k.String()
	}
}

func inboundBody(ev InboundEvent) string {
	switch {
	case ev.IsButton && ev.Text != "":
		return ev.Text
	case ev.IsButton:
		return ev.ButtonPayload
	case ev.Text == "":
		return MediaPlaceholder
	default:
		return ev.Text
	}
}
