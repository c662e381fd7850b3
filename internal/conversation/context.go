package conversation

import (
	"fmt"
	"time"

	"github.com/bookline-ai/bookline/internal/dialogue"
)

// Turn roles. The engine appends user turns; response generation (outside
// this core) appends assistant turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Key identifies a conversation: one user on one channel talking to one
// business.
type Key struct {
	Channel       string `json:"channel"`
	ChannelUserID string `json:"channel_user_id"`
	BusinessID    string `json:"business_id"`
}

// String renders the key in the "chat:{business}:{channel}:{user}" form
// used for store keys and per-session locks.
func (k Key) String() string {
	return fmt.Sprintf("chat:%s:%s:%s", k.BusinessID, k.Channel, k.ChannelUserID)
}

// Context is the rolling per-conversation state: a bounded window of past
// turns plus the dialogue state. Only the dialogue manager mutates State;
// the context store persists and loads the whole structure.
type Context struct {
	Key      Key             `json:"key"`
	Turns    []Turn          `json:"turns,omitempty"`
	State    *dialogue.State `json:"state,omitempty"`
	capacity int
}

// NewContext creates an empty context whose turn buffer holds at most
// capacity turns. A capacity of zero or less means unbounded.
func NewContext(key Key, capacity int) *Context {
	return &Context{
		Key:      key,
		State:    &dialogue.State{},
		capacity: capacity,
	}
}

// SetCapacity bounds the turn buffer, evicting oldest turns immediately if
// the buffer already exceeds the new capacity. Stores call this after
// decoding a persisted context, since capacity is runtime configuration
// rather than persisted state.
func (c *Context) SetCapacity(capacity int) {
	c.capacity = capacity
	c.evict()
}

// Append adds a turn, evicting the oldest entries once capacity is
// exceeded. Insertion order is the only ordering guarantee.
func (c *Context) Append(turn Turn) {
	c.Turns = append(c.Turns, turn)
	c.evict()
}

// Recent returns the last n turns in insertion order. It returns the
// backing slice's tail, so callers must not mutate the result.
func (c *Context) Recent(n int) []Turn {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	if n >= len(c.Turns) {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}

func (c *Context) evict() {
	if c.capacity <= 0 {
		return
	}
	if excess := len(c.Turns) - c.capacity; excess > 0 {
		c.Turns = append(c.Turns[:0], c.Turns[excess:]...)
	}
}
