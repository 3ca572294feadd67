package mq

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DeliversInOrder(t *testing.T) {
	q := NewMemoryQueue(16)

	var mu sync.Mutex
	var got []string
	q.RegisterHandler(func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		return nil
	})

	require.NoError(t, q.Publish(context.Background(), NewEvent(EventVoteCast, "23BCS01:1")))
	require.NoError(t, q.Publish(context.Background(), NewEvent(EventVoterReset, "23BCS01")))
	q.Stop()

	assert.Equal(t, []string{EventVoteCast, EventVoterReset}, got)
}

func TestMemoryQueue_PublishAfterStop(t *testing.T) {
	q := NewMemoryQueue(1)
	q.Stop()
	assert.ErrorIs(t, q.Publish(context.Background(), NewEvent(EventGlobalReset, "all")), ErrQueueClosed)
}

func TestMQAdapter_MemoryMode(t *testing.T) {
	a := NewMQAdapter(nil, "")

	done := make(chan Event, 1)
	require.NoError(t, a.RegisterHandler(func(_ context.Context, e Event) error {
		done <- e
		return nil
	}))

	e := NewEvent(EventVoteCast, "23BCS01:1")
	e.VoterID = "23BCS01"
	require.NoError(t, a.Publish(context.Background(), e))

	got := <-done
	assert.Equal(t, e.MessageID, got.MessageID)
	assert.Equal(t, "memory", a.GetQueueStats()["type"])

	_, err := a.RetryDeadLetters(context.Background())
	assert.Error(t, err)
	a.Close()
}

func TestNewEvent_UniqueMessageIDs(t *testing.T) {
	a := NewEvent(EventVoteCast, "23BCS01:1")
	b := NewEvent(EventVoteCast, "23BCS01:1")
	assert.Contains(t, a.MessageID, "vote_cast:23BCS01:1:")
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestNewVoteCastEvent_StableMessageID(t *testing.T) {
	a := NewVoteCastEvent("23BCS01:1", 7)
	b := NewVoteCastEvent("23BCS01:1", 7)
	assert.Equal(t, EventVoteCast, a.Type)
	assert.Equal(t, "vote_cast:23BCS01:1:7", a.MessageID)
	assert.Equal(t, a.MessageID, b.MessageID)

	// 重置后重新投出的选票是新的审计记录
	assert.NotEqual(t, a.MessageID, NewVoteCastEvent("23BCS01:1", 8).MessageID)
}
