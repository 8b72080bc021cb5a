package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string

	unsub := b.Subscribe("api_call", func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(m.Payload))
	})
	defer unsub()

	require.NoError(t, b.Publish("api_call", []byte("task-1")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	count := 0
	var mu sync.Mutex
	unsub := b.Subscribe("topic", func(Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()
	require.NoError(t, b.Publish("topic", []byte("x")))
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestWaitOneReturnsMessage(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = b.Publish("jobs", []byte("payload"))
	}()

	msg, err := WaitOne(ctx, b, "jobs")
	require.NoError(t, err)
	require.Equal(t, "payload", string(msg.Payload))
}

func TestWaitOneTimesOut(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := WaitOne(ctx, b, "never")
	require.Error(t, err)
}

// TestDeliveryPreservesPublishOrder checks one publisher's messages
// reach a subscriber in publish order, matching the per-execution
// enqueue ordering guarantee the dispatcher relies on.
func TestDeliveryPreservesPublishOrder(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string

	unsub := b.Subscribe("ordered", func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(m.Payload))
	})
	defer unsub()

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		payload := fmt.Sprintf("task-%02d", i)
		want = append(want, payload)
		require.NoError(t, b.Publish("ordered", []byte(payload)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, got)
}
