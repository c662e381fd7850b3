package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/dialogue"
)

func testKey() Key {
	return Key{Channel: "whatsapp", ChannelUserID: "u-123", BusinessID: "b-456"}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "chat:b-456:whatsapp:u-123", testKey().String())
}

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	conv := NewContext(testKey(), 3)
	for i := 0; i < 5; i++ {
		conv.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i), At: time.Now()})
	}

	require.Len(t, conv.Turns, 3)
	assert.Equal(t, "msg-2", conv.Turns[0].Content)
	assert.Equal(t, "msg-4", conv.Turns[2].Content)
}

func TestRecentReturnsTail(t *testing.T) {
	conv := NewContext(testKey(), 10)
	for i := 0; i < 4; i++ {
		conv.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	recent := conv.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "msg-2", recent[0].Content)
	assert.Equal(t, "msg-3", recent[1].Content)

	assert.Len(t, conv.Recent(100), 4)
	assert.Nil(t, conv.Recent(0))
}

func TestSetCapacityEvictsImmediately(t *testing.T) {
	conv := NewContext(testKey(), 0)
	for i := 0; i < 6; i++ {
		conv.Append(Turn{Content: fmt.Sprintf("msg-%d", i)})
	}
	require.Len(t, conv.Turns, 6)

	conv.SetCapacity(2)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "msg-4", conv.Turns[0].Content)
}

func TestMemoryStoreLoadReturnsFreshContext(t *testing.T) {
	store := NewMemoryStore(5)

	conv, err := store.Load(context.Background(), testKey())
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Empty(t, conv.Turns)
	require.NotNil(t, conv.State)
	assert.Empty(t, conv.State.ActiveGoals)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(5)
	ctx := context.Background()

	conv, err := store.Load(ctx, testKey())
	require.NoError(t, err)
	conv.Append(Turn{Role: RoleUser, Content: "hello"})
	conv.State.ActiveGoals = []*dialogue.ActiveGoal{{Type: dialogue.GoalGeneralChitChat}}
	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, testKey())
	require.NoError(t, err)
	require.Len(t, loaded.Turns, 1)
	assert.Equal(t, "hello", loaded.Turns[0].Content)
	require.Len(t, loaded.State.ActiveGoals, 1)
}
