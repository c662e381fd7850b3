package dialogue

import "time"

// GoalType identifies the kind of multi-turn objective a user is pursuing.
type GoalType string

const (
	GoalServiceBooking          GoalType = "serviceBooking"
	GoalFrequentlyAskedQuestion GoalType = "frequentlyAskedQuestion"
	GoalAccountManagement       GoalType = "accountManagement"
	GoalGeneralChitChat         GoalType = "generalChitChat"
	GoalUnknown                 GoalType = "unknown"
)

// ParseGoalType maps a string to a known GoalType, coercing anything
// unrecognized to GoalUnknown.
func ParseGoalType(s string) GoalType {
	switch GoalType(s) {
	case GoalServiceBooking, GoalFrequentlyAskedQuestion, GoalAccountManagement, GoalGeneralChitChat:
		return GoalType(s)
	default:
		return GoalUnknown
	}
}

// DetectedIntent is a single classified conversational move extracted from
// one message. Intents are ephemeral: produced per message, merged into
// goal state, never persisted.
type DetectedIntent struct {
	Type       GoalType          `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// GoalSlot is a named piece of information required to complete a goal.
// An empty Value means the slot is still unfilled.
type GoalSlot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// ActiveGoal tracks one in-progress user objective and its slot fill state.
type ActiveGoal struct {
	Type          GoalType   `json:"type"`
	Slots         []GoalSlot `json:"slots"`
	Suspended     bool       `json:"suspended,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

// Slot returns a pointer to the named slot, or nil if the goal has no
// slot with that name.
func (g *ActiveGoal) Slot(name string) *GoalSlot {
	for i := range g.Slots {
		if g.Slots[i].Name == name {
			return &g.Slots[i]
		}
	}
	return nil
}

// Complete reports whether every required slot carries a non-empty value.
func (g *ActiveGoal) Complete() bool {
	for _, s := range g.Slots {
		if s.Value == "" {
			return false
		}
	}
	return true
}

// FilledSlots counts slots with non-empty values.
func (g *ActiveGoal) FilledSlots() int {
	n := 0
	for _, s := range g.Slots {
		if s.Value != "" {
			n++
		}
	}
	return n
}

// stale reports whether the goal has gone untouched longer than timeout.
func (g *ActiveGoal) stale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(g.LastUpdatedAt) > timeout
}

// State is the per-conversation dialogue state: the set of active goals
// and which one currently has conversational focus. At most one goal per
// GoalType exists at any time. FocusedGoal, when set, always names an
// existing goal.
type State struct {
	ActiveGoals []*ActiveGoal `json:"active_goals,omitempty"`
	FocusedGoal GoalType      `json:"focused_goal,omitempty"`
}

// Goal returns the active goal of the given type, or nil.
func (s *State) Goal(t GoalType) *ActiveGoal {
	for _, g := range s.ActiveGoals {
		if g.Type == t {
			return g
		}
	}
	return nil
}
