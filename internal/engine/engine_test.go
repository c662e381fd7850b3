package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/availability"
	"github.com/bookline-ai/bookline/internal/bookings"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/intent"
)

const testBusinessID = "7f0e2d4a-9c1b-4e8f-a36d-5b2c8e917f40"

func testKey(user string) conversation.Key {
	return conversation.Key{Channel: "webchat", ChannelUserID: user, BusinessID: testBusinessID}
}

func newTestEngine(t *testing.T, detector intent.Detector) (*Engine, *conversation.MemoryStore, *bookings.MemoryRepository) {
	t.Helper()
	store := conversation.NewMemoryStore(20)
	repo := bookings.NewMemoryRepository()
	dir, err := directory.NewStaticDirectory(map[string]string{testBusinessID: "America/New_York"})
	require.NoError(t, err)
	manager := dialogue.NewManager(time.Hour, 0.7, nil)
	availCfg := availability.DefaultConfig()
	availCfg.RetryBaseDelay = time.Millisecond
	avail := availability.NewEngine(repo, dir, availCfg, nil, nil)
	if detector == nil {
		detector = intent.NewRuleDetector()
	}
	return New(store, nil, detector, manager, avail, 20, nil, nil), store, repo
}

func TestProcessMessageBookingScenario(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)
	key := testKey("user-1")

	res, err := e.ProcessMessage(context.Background(), "Hi, I want to book a cleaning for next Monday at 3pm", key)
	require.NoError(t, err)

	require.NotNil(t, res.FocusedGoal)
	assert.Equal(t, dialogue.GoalServiceBooking, res.FocusedGoal.Type)
	assert.True(t, res.FocusedGoal.Complete())
	assert.Equal(t, "cleaning", res.FocusedGoal.Slot("service").Value)

	// The raw message, not the normalized form, is what the transcript
	// keeps.
	require.Len(t, res.Context.Turns, 1)
	assert.Equal(t, "Hi, I want to book a cleaning for next Monday at 3pm", res.Context.Turns[0].Content)
	assert.Equal(t, conversation.RoleUser, res.Context.Turns[0].Role)

	saved, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 1)
	require.NotNil(t, saved.State.Goal(dialogue.GoalServiceBooking))
}

func TestProcessMessageFillsSlotsAcrossTurns(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	key := testKey("user-2")

	res, err := e.ProcessMessage(context.Background(), "I'd like to book an appointment", key)
	require.NoError(t, err)
	require.NotNil(t, res.FocusedGoal)
	assert.False(t, res.FocusedGoal.Complete())

	res, err = e.ProcessMessage(context.Background(), "book a massage for tomorrow at 2pm", key)
	require.NoError(t, err)
	require.NotNil(t, res.FocusedGoal)
	assert.Equal(t, dialogue.GoalServiceBooking, res.FocusedGoal.Type)
	assert.True(t, res.FocusedGoal.Complete())
	assert.Len(t, res.Context.Turns, 2)
}

func TestProcessMessageEmptyInput(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)
	key := testKey("user-3")

	_, err := e.ProcessMessage(context.Background(), "book a cleaning for friday at 3pm", key)
	require.NoError(t, err)

	res, err := e.ProcessMessage(context.Background(), "   \t  ", key)
	require.NoError(t, err)

	// Whitespace-only input leaves the conversation exactly as it was.
	assert.Len(t, res.Context.Turns, 1)
	require.NotNil(t, res.FocusedGoal)
	assert.Equal(t, dialogue.GoalServiceBooking, res.FocusedGoal.Type)

	saved, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 1)
}

type failingDetector struct{}

func (failingDetector) Detect(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error) {
	return nil, errors.New("classifier unavailable")
}

func TestProcessMessageDetectorFailureFallsBack(t *testing.T) {
	e, store, _ := newTestEngine(t, failingDetector{})
	key := testKey("user-4")

	res, err := e.ProcessMessage(context.Background(), "book a cleaning for friday at 3pm", key)
	require.NoError(t, err)

	// The unknown fallback creates no goal, but the turn is still kept so
	// a later retry has the full transcript.
	assert.Nil(t, res.FocusedGoal)
	assert.Empty(t, res.Context.State.ActiveGoals)
	assert.Len(t, res.Context.Turns, 1)

	saved, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 1)
}

// slowDetector tracks how many messages are inside Detect at once.
type slowDetector struct {
	inner       intent.Detector
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (d *slowDetector) Detect(ctx context.Context, normalized string, history []conversation.Turn) ([]dialogue.DetectedIntent, error) {
	n := d.inFlight.Add(1)
	for {
		max := d.maxInFlight.Load()
		if n <= max || d.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	d.inFlight.Add(-1)
	return d.inner.Detect(ctx, normalized, history)
}

func TestProcessMessageSerializesPerConversation(t *testing.T) {
	det := &slowDetector{inner: intent.NewRuleDetector()}
	e, store, _ := newTestEngine(t, det)
	key := testKey("user-5")

	const messages = 12
	var wg sync.WaitGroup
	for i := 0; i < messages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.ProcessMessage(context.Background(), fmt.Sprintf("message number %d", i), key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// One writer per conversation: every message lands, none lost to a
	// concurrent load-modify-save race.
	saved, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, messages)
	assert.Equal(t, int32(1), det.maxInFlight.Load())
}

func TestProcessMessageParallelAcrossConversations(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)

	const conversations = 8
	var wg sync.WaitGroup
	for i := 0; i < conversations; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey(fmt.Sprintf("user-%d", i))
			_, err := e.ProcessMessage(context.Background(), "book a cleaning for friday at 3pm", key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < conversations; i++ {
		saved, err := store.Load(context.Background(), testKey(fmt.Sprintf("user-%d", i)))
		require.NoError(t, err)
		assert.Len(t, saved.Turns, 1)
	}
}

type failingStore struct {
	conversation.Store
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, conv *conversation.Context) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, conv)
}

func TestProcessMessageSaveFailure(t *testing.T) {
	store := &failingStore{Store: conversation.NewMemoryStore(20), saveErr: errors.New("redis down")}
	repo := bookings.NewMemoryRepository()
	dir, err := directory.NewStaticDirectory(map[string]string{testBusinessID: "UTC"})
	require.NoError(t, err)
	manager := dialogue.NewManager(time.Hour, 0.7, nil)
	avail := availability.NewEngine(repo, dir, availability.DefaultConfig(), nil, nil)
	e := New(store, nil, intent.NewRuleDetector(), manager, avail, 20, nil, nil)

	_, err = e.ProcessMessage(context.Background(), "book a cleaning", testKey("user-6"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "save context")
}

func TestCommitBookingDelegation(t *testing.T) {
	e, _, repo := newTestEngine(t, nil)

	req := availability.Request{
		ProviderID: uuid.New().String(),
		BusinessID: testBusinessID,
		UserID:     uuid.New().String(),
		QuoteID:    uuid.New().String(),
		DateTime:   "2026-06-01T15:00:00Z",
	}

	b, err := e.CommitBooking(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)

	// The facade's commit path is the retrying idempotent one.
	repo.FailNext(errors.New("connection reset"))
	retried, err := e.CommitBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, b.ID, retried.ID)

	windows, err := e.GetAvailability(context.Background(), req.ProviderID, "2026-06-01", testBusinessID)
	require.NoError(t, err)
	at, _ := time.Parse(time.RFC3339, req.DateTime)
	for _, w := range windows {
		assert.False(t, w.Contains(at))
	}
}

func TestCancelAndRescheduleDelegation(t *testing.T) {
	e, _, repo := newTestEngine(t, nil)

	req := availability.Request{
		ProviderID: uuid.New().String(),
		BusinessID: testBusinessID,
		UserID:     uuid.New().String(),
		QuoteID:    uuid.New().String(),
		DateTime:   "2026-06-01T15:00:00Z",
	}
	b, err := e.CommitBooking(context.Background(), req)
	require.NoError(t, err)

	moved, err := e.RescheduleBooking(context.Background(), b.ID, "2026-06-02T16:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-06-02T16:00:00Z", moved.DateTime.UTC().Format(time.RFC3339))

	require.NoError(t, e.CancelBooking(context.Background(), b.ID))
	_, err = repo.GetByID(context.Background(), b.ID)
	assert.ErrorIs(t, err, bookings.ErrNotFound)
}
