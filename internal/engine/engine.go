// Package engine is the orchestration facade: one entry point that runs
// an inbound message through preprocessing, intent detection, and goal
// state merging, and delegates booking operations to the availability
// engine. It owns no transport; callers bring their own channel.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/bookline-ai/bookline/internal/availability"
	"github.com/bookline-ai/bookline/internal/bookings"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/internal/intent"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// Result is the outcome of processing one inbound message.
type Result struct {
	// Context is the conversation after the message was applied.
	Context *conversation.Context
	// FocusedGoal is the goal the conversation is currently pursuing, nil
	// when the message produced no actionable goal.
	FocusedGoal *dialogue.ActiveGoal
}

// Engine wires the dialogue pipeline together. Messages for the same
// conversation are serialized in arrival order; bookings go through the
// availability engine's commit path.
type Engine struct {
	store         conversation.Store
	archive       *conversation.ArchiveStore
	detector      intent.Detector
	manager       *dialogue.Manager
	availability  *availability.Engine
	sessions      *sessionLocks
	contextWindow int
	logger        *logging.Logger
	metrics       *metrics.EngineMetrics
}

// New creates the orchestration engine. archive and m may be nil.
func New(
	store conversation.Store,
	archive *conversation.ArchiveStore,
	detector intent.Detector,
	manager *dialogue.Manager,
	avail *availability.Engine,
	contextWindow int,
	logger *logging.Logger,
	m *metrics.EngineMetrics,
) *Engine {
	if store == nil {
		panic("engine: conversation store cannot be nil")
	}
	if detector == nil {
		panic("engine: intent detector cannot be nil")
	}
	if manager == nil {
		panic("engine: dialogue manager cannot be nil")
	}
	if avail == nil {
		panic("engine: availability engine cannot be nil")
	}
	if contextWindow <= 0 {
		contextWindow = 20
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:         store,
		archive:       archive,
		detector:      detector,
		manager:       manager,
		availability:  avail,
		sessions:      newSessionLocks(),
		contextWindow: contextWindow,
		logger:        logger,
		metrics:       m,
	}
}

// ProcessMessage runs one inbound message through the pipeline: load the
// conversation, normalize, detect intents, merge them into goal state,
// persist, and report the focused goal. Messages for the same key are
// applied one at a time in arrival order. Completeness of the focused
// goal is reported to the caller; committing a booking is a separate,
// explicit step.
func (e *Engine) ProcessMessage(ctx context.Context, raw string, key conversation.Key) (*Result, error) {
	lockKey := key.String()
	e.sessions.acquire(lockKey)
	defer e.sessions.release(lockKey)

	conv, err := e.store.Load(ctx, key)
	if err != nil {
		e.metrics.ObserveMessage("load_error")
		return nil, fmt.Errorf("engine: load context: %w", err)
	}

	pre := dialogue.Preprocess(raw)
	if pre.Normalized == "" {
		// Nothing to classify; the conversation is left untouched.
		e.metrics.ObserveMessage("empty")
		return &Result{Context: conv, FocusedGoal: conv.State.Goal(conv.State.FocusedGoal)}, nil
	}

	history := conv.Recent(e.contextWindow)
	intents, err := e.detector.Detect(ctx, pre.Normalized, history)
	if err != nil {
		// Detection never fails a message; an unusable classifier yields
		// the unknown fallback and the goal state stays as it was.
		e.logger.Warn("intent detection failed, using fallback",
			"conversation", lockKey,
			"error", err,
		)
		intents = []dialogue.DetectedIntent{intent.Fallback()}
	}
	for _, in := range intents {
		e.metrics.ObserveIntent(string(in.Type))
	}

	now := time.Now().UTC()
	turn := conversation.Turn{Role: conversation.RoleUser, Content: pre.Raw, At: now}
	conv.Append(turn)
	e.archiveTurn(ctx, key, turn)

	before := goalTypes(conv.State)
	focused := e.manager.Merge(conv.State, intents, now)
	e.observePruned(before, conv.State)
	if focused != nil && focused.Complete() {
		e.metrics.ObserveGoalCompleted(string(focused.Type))
	}

	if err := e.store.Save(ctx, conv); err != nil {
		e.metrics.ObserveMessage("save_error")
		return nil, fmt.Errorf("engine: save context: %w", err)
	}

	e.metrics.ObserveMessage("processed")
	return &Result{Context: conv, FocusedGoal: focused}, nil
}

// CommitBooking delegates to the availability engine's retrying commit
// path, so transports only ever talk to this facade.
func (e *Engine) CommitBooking(ctx context.Context, req availability.Request) (bookings.Booking, error) {
	return e.availability.CommitWithRetry(ctx, req)
}

// GetAvailability returns the provider's free windows for a civil date.
func (e *Engine) GetAvailability(ctx context.Context, providerID, date, businessID string) ([]availability.Window, error) {
	return e.availability.GetAvailability(ctx, providerID, date, businessID)
}

// CancelBooking removes a booking and refreshes its day's windows.
func (e *Engine) CancelBooking(ctx context.Context, id string) error {
	return e.availability.CancelBooking(ctx, id)
}

// RescheduleBooking moves a booking to a new instant.
func (e *Engine) RescheduleBooking(ctx context.Context, id, newDateTime string) (bookings.Booking, error) {
	return e.availability.RescheduleBooking(ctx, id, newDateTime)
}

// archiveTurn writes the turn to the durable archive when one is wired.
// Archival is best-effort; a failure never blocks the message.
func (e *Engine) archiveTurn(ctx context.Context, key conversation.Key, turn conversation.Turn) {
	if e.archive == nil {
		return
	}
	if err := e.archive.RecordTurn(ctx, key, turn); err != nil {
		e.logger.Warn("failed to archive turn", "conversation", key.String(), "error", err)
	}
}

func goalTypes(state *dialogue.State) map[dialogue.GoalType]bool {
	types := make(map[dialogue.GoalType]bool, len(state.ActiveGoals))
	for _, g := range state.ActiveGoals {
		types[g.Type] = true
	}
	return types
}

// observePruned counts goal types present before the merge that the merge
// removed. Merging only ever removes goals by pruning stale ones.
func (e *Engine) observePruned(before map[dialogue.GoalType]bool, state *dialogue.State) {
	after := goalTypes(state)
	for t := range before {
		if !after[t] {
			e.metrics.ObserveStaleGoalPruned()
		}
	}
}
