package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	body, err := json.Marshal(LedgerWrite{StudentID: "sc0001abc", LectureID: 42, CourseCode: "COMP3711"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeLedgerWrite, Body: body}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, TypeLedgerWrite, msg.Type)
		var evt LedgerWrite
		require.NoError(t, json.Unmarshal(msg.Body, &evt))
		assert.Equal(t, int64(42), evt.LectureID)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: TypeLedgerWrite, Body: []byte(`{"course_code":"COMP1711"}`)}
	got, err := deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
