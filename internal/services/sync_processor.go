package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cofrinho/internal/amqp"
	"cofrinho/internal/log"
)

// ErrQueueFull is returned by Publish when the processor cannot accept
// more events without blocking the caller.
var ErrQueueFull = errors.New("sync queue is full")

// EventHandler applies one ledger event to the mirror.
type EventHandler func(ctx context.Context, ev *amqp.TransactionEvent) error

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// QueueSize bounds the number of pending events (default: 256)
	QueueSize int

	// MaxRetries is the maximum attempts per event before it is dropped (default: 3)
	MaxRetries int

	// RetryDelay is the pause between attempts (default: 500ms)
	RetryDelay time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		QueueSize:  256,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// SyncStats is a snapshot of processor counters.
type SyncStats struct {
	Processed int64
	Failed    int64
	Pending   int
}

// SyncProcessor mirrors ledger events in-process when no broker is
// configured. It implements Publisher, so LedgerService can use it in place
// of the AMQP client.
type SyncProcessor struct {
	handler EventHandler
	config  SyncProcessorConfig
	logger  *log.Logger
	queue   chan *amqp.TransactionEvent

	processed atomic.Int64
	failed    atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(handler EventHandler, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SyncProcessor{
		handler: handler,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		queue:   make(chan *amqp.TransactionEvent, config.QueueSize),
	}
}

// Publish enqueues the event without blocking.
func (p *SyncProcessor) Publish(ctx context.Context, ev *amqp.TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"queue_size", p.config.QueueSize,
		"max_retries", p.config.MaxRetries)

	return nil
}

// Stop drains queued events, stops the loop and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns current counters.
func (p *SyncProcessor) Stats() SyncStats {
	return SyncStats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Pending:   len(p.queue),
	}
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			p.drain(ctx)
			return
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			p.process(ctx, ev)
		}
	}
}

// drain applies whatever is still queued, one attempt each.
func (p *SyncProcessor) drain(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			if err := p.handler(ctx, ev); err != nil {
				p.fail(ctx, ev, 1, err)
				continue
			}
			p.processed.Add(1)
		default:
			return
		}
	}
}

func (p *SyncProcessor) process(ctx context.Context, ev *amqp.TransactionEvent) {
	var err error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if err = p.handler(ctx, ev); err == nil {
			p.processed.Add(1)
			return
		}
		p.logger.WarnContext(ctx, "Sync processing failed",
			"event_id", ev.ID,
			log.FieldEventType, ev.Type,
			"attempt", attempt,
			"error", err)
		if attempt == p.config.MaxRetries {
			break
		}
		select {
		case <-time.After(p.config.RetryDelay):
		case <-p.stopCh:
			p.fail(ctx, ev, attempt, err)
			return
		case <-ctx.Done():
			p.fail(ctx, ev, attempt, ctx.Err())
			return
		}
	}
	p.fail(ctx, ev, p.config.MaxRetries, err)
}

func (p *SyncProcessor) fail(ctx context.Context, ev *amqp.TransactionEvent, attempts int, err error) {
	p.failed.Add(1)
	p.logger.ErrorContext(ctx, "Sync event failed permanently",
		"event_id", ev.ID,
		log.FieldEventType, ev.Type,
		log.FieldShortID, ev.ShortID,
		"attempts", attempts,
		"error", err)
}
