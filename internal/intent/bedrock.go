package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/pkg/logging"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

const detectorSystemPrompt = `You classify one chat message from a customer of a local service business into conversational intents.
Return ONLY a JSON array, no prose. Each element: {"type": one of "serviceBooking", "frequentlyAskedQuestion", "accountManagement", "generalChitChat", "unknown"; "confidence": number 0..1; "entities": object of string to string}.
Allowed entity names: serviceBooking -> service, date, time; frequentlyAskedQuestion -> question; accountManagement -> action.
A single message can carry several intents. Order the array by how central each intent is to the message.`

// maxHistoryTurns bounds how much conversation history is sent upstream.
const maxHistoryTurns = 10

// BedrockDetector classifies messages with an LLM through the Bedrock
// Converse API. It fails closed: any upstream error, timeout or malformed
// response yields the unknown fallback intent instead of an error, so the
// dialogue pipeline never stalls on the NLU provider.
type BedrockDetector struct {
	api     converseAPI
	modelID string
	limiter *Limiter
	timeout time.Duration
	logger  *logging.Logger
}

var _ Detector = (*BedrockDetector)(nil)

// NewBedrockDetector wires a model-backed detector. limiter may be nil to
// run unthrottled (tests); logger nil falls back to the default logger.
func NewBedrockDetector(api converseAPI, modelID string, limiter *Limiter, timeout time.Duration, logger *logging.Logger) (*BedrockDetector, error) {
	if api == nil {
		return nil, errors.New("intent: bedrock converse client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("intent: bedrock model id is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BedrockDetector{
		api:     api,
		modelID: modelID,
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// wireIntent is the JSON shape the model is asked to produce.
type wireIntent struct {
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// Detect classifies the message, falling back to the unknown intent on any
// upstream failure.
func (d *BedrockDetector) Detect(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error) {
	if strings.TrimSpace(normalized) == "" {
		return nil, nil
	}

	intents, err := d.classify(ctx, normalized, history)
	if err != nil {
		d.logger.Warn("nlu classification failed, falling back to unknown intent",
			"error", err,
		)
		return []dialogue.DetectedIntent{Fallback()}, nil
	}
	if len(intents) == 0 {
		return []dialogue.DetectedIntent{Fallback()}, nil
	}
	return intents, nil
}

func (d *BedrockDetector) classify(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx, estimateTokens(normalized)); err != nil {
			return nil, err
		}
	}

	messages := make([]brtypes.Message, 0, maxHistoryTurns+1)
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	for _, turn := range history[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := brtypes.ConversationRoleUser
		if turn.Role == conversation.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		messages = append(messages, brtypes.Message{
			Role: role,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: content},
			},
		})
	}
	messages = append(messages, brtypes.Message{
		Role: brtypes.ConversationRoleUser,
		Content: []brtypes.ContentBlock{
			&brtypes.ContentBlockMemberText{Value: normalized},
		},
	})

	out, err := d.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(d.modelID),
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: detectorSystemPrompt},
		},
		Messages: messages,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(512),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return nil, err
	}

	text, err := extractOutputText(out)
	if err != nil {
		return nil, err
	}
	return decodeIntents(text)
}

func extractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("intent: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("intent: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return "", errors.New("intent: bedrock response message was empty")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	text := builder.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("intent: bedrock response contained no text content blocks")
	}
	return text, nil
}

// decodeIntents parses the model's JSON array, coercing unrecognized goal
// types to unknown and dropping entries the schema cannot accept at all.
func decodeIntents(text string) ([]dialogue.DetectedIntent, error) {
	text = strings.TrimSpace(text)
	// Models occasionally wrap JSON in a code fence despite instructions.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var wire []wireIntent
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, errors.New("intent: bedrock response was not a JSON intent array")
	}

	intents := make([]dialogue.DetectedIntent, 0, len(wire))
	for _, w := range wire {
		confidence := w.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		goalType := dialogue.ParseGoalType(w.Type)
		if goalType == dialogue.GoalUnknown {
			confidence = 0
		}
		intents = append(intents, dialogue.DetectedIntent{
			Type:       goalType,
			Confidence: confidence,
			Entities:   w.Entities,
		})
	}
	return intents, nil
}

// estimateTokens approximates provider token counting for budgeting.
func estimateTokens(text string) int {
	return len(detectorSystemPrompt)/4 + len(text)/4 + 64
}
