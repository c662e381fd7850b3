package dialogue

import "time"

// slotSchemas declares, per goal type, which slots a goal carries. Slot
// order here is the order slots appear on a freshly seeded goal. Entities
// whose names are not in the goal's schema are rejected at the merge
// boundary instead of accepted as arbitrary keys.
var slotSchemas = map[GoalType][]string{
	GoalServiceBooking:          {"service", "date", "time"},
	GoalFrequentlyAskedQuestion: {"question"},
	GoalAccountManagement:       {"action"},
	GoalGeneralChitChat:         {},
}

// goalPriority orders goal types for focus selection when no explicit
// focus is set. Lower value wins.
var goalPriority = map[GoalType]int{
	GoalServiceBooking:          0,
	GoalAccountManagement:       1,
	GoalFrequentlyAskedQuestion: 2,
	GoalGeneralChitChat:         3,
}

// SchemaFor returns the declared slot names for a goal type. The second
// return is false for types with no schema (unknown).
func SchemaFor(t GoalType) ([]string, bool) {
	names, ok := slotSchemas[t]
	return names, ok
}

// newGoal seeds an ActiveGoal with empty slots from the type's schema.
func newGoal(t GoalType, now time.Time) *ActiveGoal {
	names := slotSchemas[t]
	slots := make([]GoalSlot, len(names))
	for i, name := range names {
		slots[i] = GoalSlot{Name: name}
	}
	return &ActiveGoal{
		Type:          t,
		Slots:         slots,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// schemaAllows reports whether the goal type's schema declares the slot name.
func schemaAllows(t GoalType, name string) bool {
	for _, n := range slotSchemas[t] {
		if n == name {
			return true
		}
	}
	return false
}
