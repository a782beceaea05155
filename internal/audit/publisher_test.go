package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingSink records appended events and can be scripted to fail.
type collectingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	seen   chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{seen: make(chan struct{}, 16)}
}

func (s *collectingSink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen <- struct{}{}
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *collectingSink) collected() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink append")
	}
}

func TestChannelPublisher_StampsTimestampAndDelivers(t *testing.T) {
	publisher := NewChannelPublisher(4, nil)
	sink := newCollectingSink()
	worker := NewWorker(sink, publisher.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	publisher.Publish(ctx, Event{Action: ActionUserSynced, ExternalID: "u1"})
	waitFor(t, sink.seen)

	events := sink.collected()
	require.Len(t, events, 1)
	assert.Equal(t, ActionUserSynced, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "publisher stamps missing timestamps")

	cancel()
	<-done
}

func TestChannelPublisher_FullInboxDropsInsteadOfBlocking(t *testing.T) {
	// No worker draining: the buffer fills and later events are dropped.
	publisher := NewChannelPublisher(2, nil)
	ctx := context.Background()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 10; i++ {
			publisher.Publish(ctx, Event{Action: ActionUserDeleted})
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full inbox")
	}
	assert.Len(t, publisher.Inbox(), 2)
}

func TestWorker_KeepsDrainingAfterSinkFailure(t *testing.T) {
	publisher := NewChannelPublisher(4, nil)
	sink := newCollectingSink()
	sink.err = errors.New("broker unavailable")
	worker := NewWorker(sink, publisher.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	publisher.Publish(ctx, Event{Action: ActionUserSynced})
	waitFor(t, sink.seen)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	publisher.Publish(ctx, Event{Action: ActionUserDeleted})
	waitFor(t, sink.seen)

	events := sink.collected()
	require.Len(t, events, 1, "the failed event is dropped, the next succeeds")
	assert.Equal(t, ActionUserDeleted, events[0].Action)

	cancel()
	<-done
}
