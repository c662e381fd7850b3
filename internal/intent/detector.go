package intent

import (
	"context"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
)

// Detector classifies one normalized message into an ordered list of
// intents. Implementations must be side-effect free and deterministic for
// a given version, and must honor the fail-closed contract: detection
// returns an empty slice only for empty input; for anything else it
// returns at least one intent, falling back to an unknown intent with
// confidence zero rather than returning an error the caller would have to
// interpret. Slice order is priority order when entities collide
// downstream.
type Detector interface {
	Detect(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error)
}

// Fallback is the unknown intent used when classification cannot run or
// produced nothing usable.
func Fallback() dialogue.DetectedIntent {
	return dialogue.DetectedIntent{Type: dialogue.GoalUnknown, Confidence: 0}
}
