package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cofrinho/internal/core"
	"cofrinho/internal/intent"
	"cofrinho/internal/log"
	"cofrinho/internal/reply"
	"cofrinho/internal/storage/memory"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []reply.Payload
	err  error
}

func (f *fakeSender) Send(_ context.Context, p reply.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSender) all() []reply.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reply.Payload(nil), f.sent...)
}

func (f *fakeSender) last(t *testing.T) reply.Payload {
	t.Helper()
	all := f.all()
	require.NotEmpty(t, all, "no reply sent")
	return all[len(all)-1]
}

// brokenLedger fails every ledger call with a store error.
type brokenLedger struct{ *memory.Store }

var errDisk = errors.New("disk I/O error")

func (brokenLedger) Insert(context.Context, int64, core.Money, string) (core.Transaction, error) {
	return core.Transaction{}, core.NewStoreError("insert transaction", errDisk)
}

func (brokenLedger) Sum(context.Context, int64) (core.Money, error) {
	return core.Money{}, core.NewStoreError("sum transactions", errDisk)
}

type brokenDirectory struct{}

func (brokenDirectory) Upsert(context.Context, string, string) (int64, error) {
	return 0, core.NewStoreError("upsert user", errDisk)
}

func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Minute) }
}

type harness struct {
	store  *memory.Store
	sender *fakeSender
	orch   *Orchestrator
}

func newHarness(opts ...memory.Option) *harness {
	store := memory.New(append([]memory.Option{memory.WithClock(tickingClock())}, opts...)...)
	sender := &fakeSender{}
	orch := New(store, store, store, sender, reply.NewComposer(time.UTC, 0), log.Discard())
	return &harness{store: store, sender: sender, orch: orch}
}

func textEvent(address, name, text string) InboundEvent {
	return InboundEvent{MessageID: "wamid." + text, Address: address, DisplayName: name, Text: text}
}

func buttonEvent(address, payload string) InboundEvent {
	return InboundEvent{MessageID: "wamid." + payload, Address: address, IsButton: true, Text: "Excluir", ButtonPayload: payload}
}

func TestHandle_RecordExpense(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	out, err := h.orch.Handle(ctx, textEvent("5511", "Ana", "10,50 padaria"))
	require.NoError(t, err)
	assert.Equal(t, intent.RecordExpense, out.Intent.Kind)

	p := h.sender.last(t)
	assert.Equal(t, "5511", p.Address)
	assert.Equal(t, reply.Button, p.Kind)
	assert.Contains(t, p.Text, "R$ 10,50")

	recent, err := h.store.Recent(ctx, out.UserID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(1050), recent[0].Amount.Cents)
	assert.Equal(t, "padaria", recent[0].Category)
	assert.Equal(t, intent.DeletePayload(recent[0].ShortID), p.ButtonPayload)
}

func TestHandle_StatementShowsNewestTen(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	for i := 1; i <= 15; i++ {
		_, err := h.orch.Handle(ctx, textEvent("5511", "Ana", fmt.Sprintf("%d item%02d", i, i)))
		require.NoError(t, err)
	}
	out, err := h.orch.Handle(ctx, textEvent("5511", "Ana", "EXTRATO"))
	require.NoError(t, err)
	assert.Equal(t, intent.ShowStatement, out.Intent.Kind)

	p := h.sender.last(t)
	assert.Contains(t, p.Text, "R$ 120,00")
	assert.Contains(t, p.Text, "item15")
	assert.Contains(t, p.Text, "item06")
	assert.NotContains(t, p.Text, "item05")
}

func TestHandle_EmptyStatement(t *testing.T) {
	h := newHarness()
	_, err := h.orch.Handle(context.Background(), textEvent("5511", "Ana", "saldo"))
	require.NoError(t, err)
	assert.Contains(t, h.sender.last(t).Text, reply.EmptyStatement)
}

func TestHandle_StatementAfterLargestEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	for range 2 {
		out, err := h.orch.Handle(ctx, textEvent("5511", "Ana", "1000000000 casa"))
		require.NoError(t, err)
		require.Equal(t, intent.RecordExpense, out.Intent.Kind)
	}
	_, err := h.orch.Handle(ctx, textEvent("5511", "Ana", "1000000000,01 iate"))
	require.NoError(t, err)

	_, err = h.orch.Handle(ctx, textEvent("5511", "Ana", "extrato"))
	require.NoError(t, err)
	p := h.sender.last(t)
	assert.Contains(t, p.Text, "Total: *R$ 2000000000,00*")
	assert.NotContains(t, p.Text, "iate")
}

func TestHandle_TextAndButtonDeleteAreEquivalent(t *testing.T) {
	ctx := context.Background()
	run := func(ev func(shortID string) InboundEvent) (reply.Payload, core.Money) {
		h := newHarness(memory.WithShortIDGenerator(func() string { return "ABCDE" }))
		out, err := h.orch.Handle(ctx, textEvent("5511", "Ana", "50 mercado"))
		require.NoError(t, err)

		_, err = h.orch.Handle(ctx, ev("ABCDE"))
		require.NoError(t, err)

		total, err := h.store.Sum(ctx, out.UserID)
		require.NoError(t, err)
		return h.sender.last(t), total
	}

	viaText, textTotal := run(func(id string) InboundEvent { return textEvent("5511", "Ana", "excluir "+id) })
	viaButton, buttonTotal := run(func(id string) InboundEvent { return buttonEvent("5511", "del_"+id) })
	viaLowercase, _ := run(func(id string) InboundEvent { return textEvent("5511", "Ana", "Excluir abcde") })

	assert.Equal(t, viaText, viaButton)
	assert.Equal(t, viaText, viaLowercase)
	assert.Contains(t, viaText.Text, "ABCDE")
	assert.Zero(t, textTotal.Cents)
	assert.Zero(t, buttonTotal.Cents)
}

func TestHandle_DeleteIsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	bob, err := h.orch.Handle(ctx, textEvent("bob", "Bob", "50 aluguel"))
	require.NoError(t, err)
	recent, err := h.store.Recent(ctx, bob.UserID, 1)
	require.NoError(t, err)
	shortID := recent[0].ShortID

	_, err = h.orch.Handle(ctx, buttonEvent("alice", "del_"+shortID))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("⚠️ Lançamento %s não encontrado.", shortID), h.sender.last(t).Text)

	total, err := h.store.Sum(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), total.Cents)
}

func TestHandle_Menu(t *testing.T) {
	h := newHarness()

	out, err := h.orch.Handle(context.Background(), textEvent("5511", "Ana", "oi"))
	require.NoError(t, err)
	assert.Equal(t, intent.ShowMenu, out.Intent.Kind)
	assert.Contains(t, h.sender.last(t).Text, "Olá Ana!")

	_, err = h.orch.Handle(context.Background(), textEvent("5511", "Ana", "-5 comida"))
	require.NoError(t, err)
	assert.Contains(t, h.sender.last(t).Text, "Desculpe, não entendi.")
}

func TestHandle_UnknownButtonSendsNothing(t *testing.T) {
	h := newHarness()

	out, err := h.orch.Handle(context.Background(), buttonEvent("5511", "something_else"))
	require.NoError(t, err)
	assert.Equal(t, intent.Noop, out.Intent.Kind)
	assert.Nil(t, out.Reply)
	assert.Empty(t, h.sender.all())
}

func TestHandle_StoreFailureSendsGenericReply(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	composer := reply.NewComposer(time.UTC, 0)
	orch := New(store, brokenLedger{store}, store, sender, composer, log.Discard())

	for _, text := range []string{"10 café", "extrato"} {
		out, err := orch.Handle(context.Background(), textEvent("5511", "Ana", text))
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrStore)
		require.NotNil(t, out.Reply)
		assert.Equal(t, composer.Failure("5511"), *out.Reply)
	}
	assert.Len(t, sender.all(), 2)
}

func TestHandle_DirectoryFailureDropsEvent(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	orch := New(brokenDirectory{}, store, store, sender, nil, log.Discard())

	_, err := orch.Handle(context.Background(), textEvent("5511", "Ana", "10 café"))
	assert.ErrorIs(t, err, core.ErrStore)
	assert.Empty(t, sender.all())
}

func TestHandle_SendFailureIsReturned(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{err: errors.New("provider down")}
	orch := New(store, store, store, sender, nil, log.Discard())

	out, err := orch.Handle(context.Background(), textEvent("5511", "Ana", "oi"))
	require.Error(t, err)
	assert.Nil(t, out.Reply)

	msgs, err := store.ListMessages(context.Background(), out.UserID)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "only the received message is logged")
}

func TestHandle_MessageLog(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	out, err := h.orch.Handle(ctx, textEvent("5511", "", ""))
	require.NoError(t, err)

	msgs, err := h.store.ListMessages(ctx, out.UserID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.Received, msgs[0].Direction)
	assert.Equal(t, MediaPlaceholder, msgs[0].Body)
	assert.Equal(t, core.Sent, msgs[1].Direction)

	users, err := h.store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.UnknownDisplayName, users[0].DisplayName)
}

func TestHandle_ConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	var g errgroup.Group
	g.SetLimit(8)
	for u := 0; u < 10; u++ {
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, err := h.orch.Handle(ctx, textEvent(fmt.Sprintf("user-%d", u), "", "1,00 café"))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	users, err := h.store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 10)
	for _, u := range users {
		total, err := h.store.Sum(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), total.Cents, u.Address)
	}
	assert.Len(t, h.sender.all(), 100)
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	uid, err := h.store.Upsert(ctx, "5511", "Ana")
	require.NoError(t, err)

	require.NoError(t, h.orch.Send(ctx, uid, reply.TextPayload("5511", "olá do painel")))

	msgs, err := h.store.ListMessages(ctx, uid)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "olá do painel", msgs[0].Body)
}
