package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
)

// RuleDetector is the reference Detector: keyword and pattern heuristics
// with no external calls. One utterance can fire several intents (a
// greeting, a booking request and a question in the same message each
// produce their own entry).
type RuleDetector struct{}

// NewRuleDetector creates the rule-based detector.
func NewRuleDetector() *RuleDetector {
	return &RuleDetector{}
}

var _ Detector = (*RuleDetector)(nil)

var (
	greetingRE = regexp.MustCompile(`\b(hi|hello|hey|howdy|thanks|thank you|good (?:morning|afternoon|evening)|bye|goodbye)\b`)
	bookingRE  = regexp.MustCompile(`\b(book|reserve|appointment|schedule|reschedule)\b`)
	questionRE = regexp.MustCompile(`\?|\b(how|what|when|where|why|can i|do you|is there)\b`)
	accountRE  = regexp.MustCompile(`\b(?:(update|change|reset|delete|close|view)\s+my\s+(account|password|profile|email|details)|my account)\b`)

	// serviceRE captures the service noun phrase following a booking verb:
	// "book a deep cleaning for ..." -> "deep cleaning".
	serviceRE = regexp.MustCompile(`\b(?:book|reserve|schedule)\s+(?:(?:an|a|the)\s+)?([a-z]+(?:\s+[a-z]+)?)`)

	relativeDayRE = regexp.MustCompile(`\b(?:(next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	namedDayRE    = regexp.MustCompile(`\b(today|tomorrow|day after tomorrow)\b`)
	monthDayRE    = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)

	clockTimeRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	militaryRE  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	namedTimeRE = regexp.MustCompile(`\b(noon|midday|midnight)\b`)
)

// serviceStopwords terminate a captured service phrase; "book a cleaning
// for next monday" must not yield "cleaning for".
var serviceStopwords = map[string]struct{}{
	"for": {}, "on": {}, "at": {}, "next": {}, "this": {}, "tomorrow": {},
	"today": {}, "me": {}, "in": {}, "an": {}, "a": {}, "the": {},
	"appointment": {}, "slot": {}, "time": {},
}

// Detect classifies the normalized message. History is accepted for
// contract compatibility; the rule detector does not use it.
func (d *RuleDetector) Detect(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error) {
	if strings.TrimSpace(normalized) == "" {
		return nil, nil
	}

	var intents []dialogue.DetectedIntent

	if greetingRE.MatchString(normalized) {
		intents = append(intents, dialogue.DetectedIntent{
			Type:       dialogue.GoalGeneralChitChat,
			Confidence: 0.6,
		})
	}

	if bookingRE.MatchString(normalized) {
		entities := extractBookingEntities(normalized)
		confidence := 0.6
		if len(entities) > 0 {
			confidence = 0.9
		}
		intents = append(intents, dialogue.DetectedIntent{
			Type:       dialogue.GoalServiceBooking,
			Confidence: confidence,
			Entities:   entities,
		})
	}

	if m := accountRE.FindStringSubmatch(normalized); m != nil {
		entities := map[string]string{}
		if m[1] != "" {
			entities["action"] = m[1] + " " + m[2]
		}
		confidence := 0.6
		if len(entities) > 0 {
			confidence = 0.9
		}
		intents = append(intents, dialogue.DetectedIntent{
			Type:       dialogue.GoalAccountManagement,
			Confidence: confidence,
			Entities:   entities,
		})
	}

	if questionRE.MatchString(normalized) {
		intents = append(intents, dialogue.DetectedIntent{
			Type:       dialogue.GoalFrequentlyAskedQuestion,
			Confidence: 0.6,
			Entities:   map[string]string{"question": normalized},
		})
	}

	if len(intents) == 0 {
		intents = append(intents, Fallback())
	}
	return intents, nil
}

func extractBookingEntities(text string) map[string]string {
	entities := map[string]string{}
	if service := extractService(text); service != "" {
		entities["service"] = service
	}
	if date := extractDate(text); date != "" {
		entities["date"] = date
	}
	if clock := extractTime(text); clock != "" {
		entities["time"] = clock
	}
	if len(entities) == 0 {
		return nil
	}
	return entities
}

func extractService(text string) string {
	m := serviceRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	words := strings.Fields(m[1])
	kept := words[:0]
	for _, w := range words {
		if _, stop := serviceStopwords[w]; stop {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func extractDate(text string) string {
	if m := relativeDayRE.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return m[1] + " " + m[2]
		}
		return m[2]
	}
	if m := namedDayRE.FindString(text); m != "" {
		return m
	}
	if m := monthDayRE.FindStringSubmatch(text); m != nil {
		return m[1] + " " + m[2]
	}
	return ""
}

func extractTime(text string) string {
	if m := clockTimeRE.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			return fmt.Sprintf("%s:%s%s", m[1], m[2], m[3])
		}
		return m[1] + m[3]
	}
	if m := militaryRE.FindString(text); m != "" {
		return m
	}
	if m := namedTimeRE.FindString(text); m != "" {
		return m
	}
	return ""
}
