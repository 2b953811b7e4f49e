package http

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"cofrinho/internal/dialogue"
	"cofrinho/internal/log"
	"cofrinho/internal/whatsapp"
)

const signatureHeader = "X-Hub-Signature-256"

// handleWebhookVerify answers the subscription handshake.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.cfg.VerifyToken)
	if !ok {
		s.reqLogger(r.Context()).WarnContext(r.Context(), "Webhook verification rejected",
			"mode", q.Get("hub.mode"),
			log.FieldErrorType, log.ErrorTypeAuth)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.reqLogger(r.Context()).InfoContext(r.Context(), "Webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleWebhookEvent decodes a notification and runs every fresh event
// through the dialogue before acknowledging. Per-event failures are logged
// and still acknowledged so the provider does not redeliver them.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		BadRequestError("Corpo da requisição inválido").Write(w)
		return
	}

	if !whatsapp.VerifySignature(body, r.Header.Get(signatureHeader), s.cfg.AppSecret) {
		s.appMetrics.badSignature.Add(1)
		s.reqLogger(ctx).WarnContext(ctx, "Webhook signature mismatch",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldErrorType, log.ErrorTypeAuth)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	events, err := whatsapp.DecodeWebhook(body)
	switch {
	case errors.Is(err, whatsapp.ErrForeignObject):
		w.WriteHeader(http.StatusNotFound)
		return
	case err != nil:
		s.reqLogger(ctx).WarnContext(ctx, "Malformed webhook payload",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldOperation, log.OpParse)
		BadRequestError("Payload inválido").Write(w)
		return
	}

	fresh := s.filterDuplicates(ctx, events)
	if len(fresh) > 0 {
		// Detached from the request so a provider timeout does not abort a
		// half-applied event.
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandleTimeout)
		defer cancel()
		s.dispatch(hctx, fresh)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (s *Server) filterDuplicates(ctx context.Context, events []dialogue.InboundEvent) []dialogue.InboundEvent {
	fresh := events[:0:0]
	for _, ev := range events {
		if s.dedup.Seen(ev.MessageID) {
			s.appMetrics.duplicates.Add(1)
			s.reqLogger(ctx).WithComponent(log.ComponentWebhook).DebugContext(ctx, "Skipping redelivered event",
				log.FieldMessageID, ev.MessageID)
			continue
		}
		fresh = append(fresh, ev)
	}
	return fresh
}

// dispatch handles events grouped by sender: senders run concurrently up to
// the configured limit, events of one sender run in arrival order.
func (s *Server) dispatch(ctx context.Context, events []dialogue.InboundEvent) {
	var order []string
	bySender := make(map[string][]dialogue.InboundEvent)
	for _, ev := range events {
		if _, ok := bySender[ev.Address]; !ok {
			order = append(order, ev.Address)
		}
		bySender[ev.Address] = append(bySender[ev.Address], ev)
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, address := range order {
		queue := bySender[address]
		g.Go(func() error {
			for _, ev := range queue {
				s.handleEvent(ctx, ev)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Server) handleEvent(ctx context.Context, ev dialogue.InboundEvent) {
	s.appMetrics.events.Add(1)
	out, err := s.dialogue.Handle(ctx, ev)
	if err == nil {
		return
	}
	s.appMetrics.failures.Add(1)
	// The user was never resolved so nothing was applied; let a provider
	// retry through.
	if out.UserID == 0 {
		s.dedup.Forget(ev.MessageID)
	}
	errorType := log.ErrorTypeInternal
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = log.ErrorTypeTimeout
	}
	s.reqLogger(ctx).WithComponent(log.ComponentWebhook).ErrorContext(ctx, "Inbound event failed",
		log.NewFields().
			WithInbound(ev.MessageID, ev.Address).
			WithError(err).
			WithErrorType(errorType).ToSlice()...)
}
