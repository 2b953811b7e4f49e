package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/log"
	"cofrinho/internal/reply"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		s.reqLogger(ctx).WarnContext(ctx, "Readiness check failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase)
	} else {
		checks["store"] = "ok"
	}

	checks["dedup_cache"] = map[string]any{
		"entries": s.dedup.Size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)

	// Prometheus text exposition
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP webhook_events_total Inbound events handed to the dialogue\n")
	fmt.Fprintf(w, "# TYPE webhook_events_total counter\n")
	fmt.Fprintf(w, "webhook_events_total %d\n\n", m.events.Load())

	fmt.Fprintf(w, "# HELP webhook_duplicates_total Redelivered events skipped\n")
	fmt.Fprintf(w, "# TYPE webhook_duplicates_total counter\n")
	fmt.Fprintf(w, "webhook_duplicates_total %d\n\n", m.duplicates.Load())

	fmt.Fprintf(w, "# HELP webhook_failures_total Events whose handling returned an error\n")
	fmt.Fprintf(w, "# TYPE webhook_failures_total counter\n")
	fmt.Fprintf(w, "webhook_failures_total %d\n\n", m.failures.Load())

	fmt.Fprintf(w, "# HELP webhook_bad_signature_total Payloads rejected by signature check\n")
	fmt.Fprintf(w, "# TYPE webhook_bad_signature_total counter\n")
	fmt.Fprintf(w, "webhook_bad_signature_total %d\n\n", m.badSignature.Load())

	fmt.Fprintf(w, "# HELP manual_sends_total Messages sent from the dashboard\n")
	fmt.Fprintf(w, "# TYPE manual_sends_total counter\n")
	fmt.Fprintf(w, "manual_sends_total %d\n\n", m.manualSends.Load())

	fmt.Fprintf(w, "# HELP dedup_entries Provider message ids remembered\n")
	fmt.Fprintf(w, "# TYPE dedup_entries gauge\n")
	fmt.Fprintf(w, "dedup_entries %d\n\n", s.dedup.Size())

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.securityDetector.SuspiciousCount())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(m.uptime).Seconds())
}

// handleLeads lists users, most recent interaction first.
func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.reqLogger(r.Context()).ErrorContext(r.Context(), "Failed to list users",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldOperation, log.OpList)
		InternalServerError("Erro ao carregar contatos").Write(w)
		return
	}
	OK(toLeadViews(users)).Write(w)
}

// handleMessages returns one user's conversation log, oldest first.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.PathValue("userID"))
	if err != nil {
		BadRequestError("Identificador inválido").Write(w)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), userID)
	if err != nil {
		s.reqLogger(r.Context()).ErrorContext(r.Context(), "Failed to list messages",
			log.FieldUserID, userID,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldOperation, log.OpList)
		InternalServerError("Erro ao carregar mensagens").Write(w)
		return
	}
	OK(toMessageViews(msgs)).Write(w)
}

// handleSendMessage delivers a message typed on the dashboard. Unknown
// phones are added to the directory so the conversation shows up in the
// leads list; known users keep their display name.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	phone := parser.Get("phone")
	message := parser.Get("message")
	if phone == "" || message == "" {
		BadRequestError("Telefone e mensagem necessários").Write(w)
		return
	}

	userID, err := s.resolveUser(ctx, phone)
	if err != nil {
		s.reqLogger(ctx).ErrorContext(ctx, "Failed to resolve user for manual send",
			log.FieldAddress, phone,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldOperation, log.OpUpsert)
		InternalServerError("Erro ao registrar contato").Write(w)
		return
	}

	if err := s.dialogue.Send(ctx, userID, reply.TextPayload(phone, message)); err != nil {
		s.reqLogger(ctx).ErrorContext(ctx, "Manual send failed",
			log.FieldUserID, userID,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeExternal,
			log.FieldOperation, log.OpSend)
		BadGatewayError("Falha ao enviar mensagem").Write(w)
		return
	}

	s.appMetrics.manualSends.Add(1)
	s.reqLogger(ctx).InfoContext(ctx, "Manual message sent",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpSend)
	OK(StatusBody{Status: "success"}).Write(w)
}

func (s *Server) resolveUser(ctx context.Context, phone string) (int64, error) {
	u, err := s.store.FindUserByAddress(ctx, phone)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return 0, err
	}
	return s.store.Upsert(ctx, phone, "")
}
