package intent

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull indicates the limiter's wait queue is at capacity; the
// caller should fall back instead of queueing more work.
var ErrQueueFull = errors.New("intent: nlu request queue full")

// LimiterConfig bounds outbound NLU calls per fixed window.
type LimiterConfig struct {
	MaxRequestsPerWindow int
	MaxTokensPerWindow   int
	QueueDepth           int
	Window               time.Duration
}

// DefaultLimiterConfig mirrors typical chat-completion provider limits.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxRequestsPerWindow: 20,
		MaxTokensPerWindow:   16000,
		QueueDepth:           64,
		Window:               time.Minute,
	}
}

// Limiter enforces a request and token budget per fixed window, with a
// bounded wait queue for callers that arrive while the budget is spent.
// It is an explicit, injectable component with no global state: every
// instance carries its own counters, so tests and independent detectors
// never share a budget.
type Limiter struct {
	cfg LimiterConfig

	mu          sync.Mutex
	requests    int
	tokens      int
	windowStart time.Time

	slots chan struct{}
}

// NewLimiter creates a limiter. Zero or negative config values fall back
// to defaults.
func NewLimiter(cfg LimiterConfig) *Limiter {
	def := DefaultLimiterConfig()
	if cfg.MaxRequestsPerWindow <= 0 {
		cfg.MaxRequestsPerWindow = def.MaxRequestsPerWindow
	}
	if cfg.MaxTokensPerWindow <= 0 {
		cfg.MaxTokensPerWindow = def.MaxTokensPerWindow
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Limiter{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.QueueDepth),
	}
}

// Acquire blocks until the request fits the current window's budget or ctx
// expires. A full wait queue fails immediately with ErrQueueFull.
func (l *Limiter) Acquire(ctx context.Context, estTokens int) error {
	select {
	case l.slots <- struct{}{}:
	default:
		return ErrQueueFull
	}
	defer func() { <-l.slots }()

	for {
		l.mu.Lock()
		now := time.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
			l.windowStart = now
			l.requests = 0
			l.tokens = 0
		}
		if l.requests < l.cfg.MaxRequestsPerWindow && l.tokens+estTokens <= l.cfg.MaxTokensPerWindow {
			l.requests++
			l.tokens += estTokens
			l.mu.Unlock()
			return nil
		}
		wait := l.cfg.Window - now.Sub(l.windowStart)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
