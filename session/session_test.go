package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/telemetry"
)

// recordingStore is a minimal in-memory Store that also exposes the raw
// append calls for assertions, standing in for memstore.Store so this test
// file does not need to import it back (memstore already imports session).
type recordingStore struct {
	mu       sync.Mutex
	entries  []Entry
	failNext bool
}

func (s *recordingStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("boom")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingStore) Load(_ context.Context) (Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]Entry, len(s.entries))
	copy(cloned, s.entries)
	return Tree{Entries: cloned}, nil
}

func (s *recordingStore) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]Entry, len(s.entries))
	copy(cloned, s.entries)
	return cloned
}

// fakeBus is a minimal Subscriber implementation that lets the test fire
// events directly without depending on the agent package (avoiding an
// import cycle: agent doesn't import session, but keeping this test
// self-contained mirrors how a real *agent.Agent is used).
type fakeBus struct {
	fn         func(hooks.AgentEvent)
	subscribes int
}

func (b *fakeBus) Subscribe(fn func(hooks.AgentEvent)) (hooks.Subscription, error) {
	b.fn = fn
	b.subscribes++
	return noopSub{}, nil
}

type noopSub struct{}

func (noopSub) Close() {}

func TestRecorderWritesMessageEndAsParentLinkedEntries(t *testing.T) {
	store := &recordingStore{}
	r := NewRecorder(store, telemetry.NewNoop())
	defer r.Stop()

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))

	m1 := message.NewUserText("first")
	m2 := message.NewUserText("second")
	bus.fn(hooks.NewMessageEnd(m1))
	bus.fn(hooks.NewMessageEnd(m2))

	require.Eventually(t, func() bool { return len(store.snapshot()) == 2 }, time.Second, time.Millisecond)

	entries := store.snapshot()
	require.Empty(t, entries[0].ParentID)
	require.Equal(t, entries[0].ID, entries[1].ParentID)
	require.Equal(t, PayloadMessage, entries[0].Kind)
	require.Same(t, m1, entries[0].Message)
	require.Same(t, m2, entries[1].Message)
}

func TestRecorderIgnoresNonMessageEndEvents(t *testing.T) {
	store := &recordingStore{}
	r := NewRecorder(store, telemetry.NewNoop())
	defer r.Stop()

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))

	bus.fn(hooks.NewAgentStart())
	bus.fn(hooks.NewMessageStart(message.NewUserText("x")))
	bus.fn(hooks.NewTurnStart())

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, store.snapshot())
}

func TestRecorderStartIsIdempotentWithoutResubscribing(t *testing.T) {
	store := &recordingStore{}
	r := NewRecorder(store, telemetry.NewNoop())
	defer r.Stop()

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))
	firstFn := bus.fn
	require.NoError(t, r.Start(bus))
	require.NoError(t, r.Start(bus))

	require.NotNil(t, firstFn)
	require.Equal(t, 1, bus.subscribes)
}

func TestRecorderStopDrainsQueueBeforeReturning(t *testing.T) {
	store := &recordingStore{}
	r := NewRecorder(store, telemetry.NewNoop())

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))
	for i := 0; i < 50; i++ {
		bus.fn(hooks.NewMessageEnd(message.NewUserText("m")))
	}
	r.Stop()

	require.Len(t, store.snapshot(), 50)
}

func TestRecorderEventsAfterStopAreDropped(t *testing.T) {
	store := &recordingStore{}
	r := NewRecorder(store, telemetry.NewNoop())

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))
	r.Stop()

	require.NotPanics(t, func() { bus.fn(hooks.NewMessageEnd(message.NewUserText("late"))) })
}

func TestRecorderLogsAsyncAppendFailureWithoutPanicking(t *testing.T) {
	store := &recordingStore{failNext: true}
	r := NewRecorder(store, telemetry.NewNoop())
	defer r.Stop()

	bus := &fakeBus{}
	require.NoError(t, r.Start(bus))
	bus.fn(hooks.NewMessageEnd(message.NewUserText("will fail")))
	bus.fn(hooks.NewMessageEnd(message.NewUserText("will succeed")))

	require.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, time.Second, time.Millisecond)
}
