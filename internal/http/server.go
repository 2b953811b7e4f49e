package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cofrinho/internal/cache"
	"cofrinho/internal/core"
	"cofrinho/internal/dialogue"
	"cofrinho/internal/log"
	"cofrinho/internal/middleware/ratelimit"
	"cofrinho/internal/middleware/security"
	"cofrinho/internal/middleware/trace"
	"cofrinho/internal/reply"
	appweb "cofrinho/web"
)

const (
	defaultConcurrency   = 8
	defaultHandleTimeout = 30 * time.Second
	defaultDedupSize     = 10000
	defaultDedupTTL      = 24 * time.Hour
	staticMaxAge         = 3600
)

// Store is what the HTTP shell reads for the dashboard and writes for
// manual sends.
type Store interface {
	Upsert(ctx context.Context, address, displayName string) (int64, error)
	FindUserByAddress(ctx context.Context, address string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	ListMessages(ctx context.Context, userID int64) ([]core.Message, error)
	Ping(ctx context.Context) error
}

// Dialogue handles inbound events and manual sends.
type Dialogue interface {
	Handle(ctx context.Context, ev dialogue.InboundEvent) (dialogue.Outcome, error)
	Send(ctx context.Context, userID int64, p reply.Payload) error
}

// Config holds the transport settings of the server.
type Config struct {
	Addr string

	// VerifyToken answers the webhook subscription handshake.
	VerifyToken string
	// AppSecret checks X-Hub-Signature-256; empty disables the check.
	AppSecret string

	// Concurrency bounds how many senders of one webhook payload are
	// handled at once.
	Concurrency        int
	HandleTimeout      time.Duration
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	cfg      Config
	store    Store
	dialogue Dialogue
	dedup    *cache.Deduplicator
	logger   *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime       time.Time
	events       atomic.Int64
	duplicates   atomic.Int64
	failures     atomic.Int64
	manualSends  atomic.Int64
	badSignature atomic.Int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. dedup may be nil, in which case a private one is created.
func NewServer(cfg Config, store Store, dlg Dialogue, dedup *cache.Deduplicator, logger *log.Logger) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	if dedup == nil {
		dedup = cache.NewDeduplicator(defaultDedupSize, defaultDedupTTL)
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector(logger)
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	rlConfig := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	s := &Server{
		cfg:              cfg,
		store:            store,
		dialogue:         dlg,
		dedup:            dedup,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhookEvent)

	mux.HandleFunc("GET /api/leads", s.handleLeads)
	mux.HandleFunc("GET /api/messages/{userID}", s.handleMessages)
	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost)
	mux.Handle("POST /api/send-message", limited(http.HandlerFunc(s.handleSendMessage)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Dashboard assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := security.StaticAssetMiddleware(staticMaxAge)(http.FileServer(http.FS(sub)))
		mux.Handle("GET /", static)
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.HandleTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.reqLogger(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("Muitas requisições. Tente novamente em instantes.").Write(w)
}

// reqLogger returns the request-scoped logger carrying the request id, or
// the server logger outside a traced request.
func (s *Server) reqLogger(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(log.LoggerContextKey).(*log.Logger); ok {
		return l
	}
	return s.logger
}
