package dialogue

import (
	"time"

	"github.com/bookline-ai/bookline/pkg/logging"
)

// Manager folds detected intents into dialogue state. It is the only
// component that mutates a conversation's State; callers must serialize
// Merge calls per conversation (the engine does this with a per-session
// lock).
type Manager struct {
	sessionTimeout time.Duration
	focusThreshold float64
	logger         *logging.Logger
}

// NewManager builds a dialogue state manager. sessionTimeout bounds goal
// staleness; focusThreshold is the minimum confidence an off-focus intent
// needs to steal conversational focus.
func NewManager(sessionTimeout time.Duration, focusThreshold float64, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		sessionTimeout: sessionTimeout,
		focusThreshold: focusThreshold,
		logger:         logger,
	}
}

// Merge applies one message's intents to the state in place and returns the
// goal in focus afterwards (nil when no goals remain). The merge is
// deterministic and idempotent for a given intent list: entity upserts are
// last-write-wins, so replaying the same intents yields identical slots.
func (m *Manager) Merge(state *State, intents []DetectedIntent, now time.Time) *ActiveGoal {
	if state == nil {
		return nil
	}

	for _, intent := range intents {
		if intent.Type == GoalUnknown {
			continue
		}
		goal := state.Goal(intent.Type)
		if goal == nil {
			goal = newGoal(intent.Type, now)
			state.ActiveGoals = append(state.ActiveGoals, goal)
		}
		m.applyEntities(goal, intent, now)
		m.maybeSwitchFocus(state, intent)
		if state.FocusedGoal == "" {
			state.FocusedGoal = intent.Type
		}
	}

	m.pruneStale(state, now)

	return m.selectFocused(state)
}

// applyEntities upserts an intent's entities into the goal's slots.
// Unknown slot names are dropped with a diagnostic; within one merge the
// last detected value for a name wins.
func (m *Manager) applyEntities(goal *ActiveGoal, intent DetectedIntent, now time.Time) {
	goal.LastUpdatedAt = now
	goal.Suspended = false
	for name, value := range intent.Entities {
		if value == "" {
			continue
		}
		if slot := goal.Slot(name); slot != nil {
			slot.Value = value
			continue
		}
		if schemaAllows(goal.Type, name) {
			goal.Slots = append(goal.Slots, GoalSlot{Name: name, Value: value})
			continue
		}
		m.logger.Debug("dropping entity not in goal schema",
			"goal_type", goal.Type,
			"entity", name,
		)
	}
}

// maybeSwitchFocus moves focus to the intent's goal when it differs from
// the current focus and the classifier is confident enough. The previous
// focused goal is suspended, never discarded: its slots survive so the
// conversation can resume it later.
func (m *Manager) maybeSwitchFocus(state *State, intent DetectedIntent) {
	if state.FocusedGoal == "" || state.FocusedGoal == intent.Type {
		return
	}
	if intent.Confidence <= m.focusThreshold {
		return
	}
	if prev := state.Goal(state.FocusedGoal); prev != nil && !prev.Complete() {
		prev.Suspended = true
	}
	m.logger.Debug("context switch",
		"from", state.FocusedGoal,
		"to", intent.Type,
		"confidence", intent.Confidence,
	)
	state.FocusedGoal = intent.Type
}

// pruneStale drops goals untouched beyond the session timeout, focused or
// not. Expiry is silent state pruning, reported only as a diagnostic.
func (m *Manager) pruneStale(state *State, now time.Time) {
	kept := state.ActiveGoals[:0]
	for _, g := range state.ActiveGoals {
		if g.stale(now, m.sessionTimeout) {
			m.logger.Debug("pruning stale goal",
				"goal_type", g.Type,
				"last_updated_at", g.LastUpdatedAt,
			)
			if state.FocusedGoal == g.Type {
				state.FocusedGoal = ""
			}
			continue
		}
		kept = append(kept, g)
	}
	state.ActiveGoals = kept
	if len(state.ActiveGoals) == 0 {
		state.ActiveGoals = nil
	}
}

// selectFocused resolves the goal to report as in focus. An explicit focus
// wins; otherwise pick by completeness, then slot fill count, then goal
// priority, then most recent update, and record the choice as the focus.
func (m *Manager) selectFocused(state *State) *ActiveGoal {
	if state.FocusedGoal != "" {
		if g := state.Goal(state.FocusedGoal); g != nil {
			return g
		}
		// Focus pointed at a pruned goal.
		state.FocusedGoal = ""
	}

	var best *ActiveGoal
	for _, g := range state.ActiveGoals {
		if best == nil || betterFocus(g, best) {
			best = g
		}
	}
	if best != nil {
		state.FocusedGoal = best.Type
	}
	return best
}

func betterFocus(a, b *ActiveGoal) bool {
	if a.Complete() != b.Complete() {
		return a.Complete()
	}
	if a.FilledSlots() != b.FilledSlots() {
		return a.FilledSlots() > b.FilledSlots()
	}
	if goalPriority[a.Type] != goalPriority[b.Type] {
		return goalPriority[a.Type] < goalPriority[b.Type]
	}
	return a.LastUpdatedAt.After(b.LastUpdatedAt)
}
