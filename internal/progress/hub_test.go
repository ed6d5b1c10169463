package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// TestHubBatchBySize verifies the hub flushes as soon as the batch limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(rowEvent(0, 1))
	hub.Emit(rowEvent(0, 2))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNeverBlocks asserts a full buffer drops instead of stalling the caller.
func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	for i := 0; i < 100; i++ {
		hub.Emit(runEvent(StageRunStart))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(100), hub.Dropped())
}

// TestHubFlushOnClose ensures Close drains buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(rowEvent(1, 1))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.closed)

	// Emitting after close is a no-op and a second Close returns immediately.
	hub.Emit(rowEvent(1, 1))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	bad := rowEvent(0, 1)
	bad.Status = scrape.StatusPending
	hub.Emit(bad)

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(runEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, hub.Dropped())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, runEvent(StageRunStart).Validate())
	require.NoError(t, rowEvent(2, 3).Validate())

	tests := []struct {
		name string
		evt  func() Event
		want string
	}{
		{"missing run id", func() Event { e := runEvent(StageRunDone); e.RunID = [16]byte{}; return e }, "run id"},
		{"missing ts", func() Event { e := runEvent(StageRunDone); e.TS = time.Time{}; return e }, "timestamp"},
		{"unknown stage", func() Event { e := runEvent("NOPE"); return e }, "unknown stage"},
		{"span without number", func() Event { e := runEvent(StageSpanStart); return e }, "span number"},
		{"completed past total", func() Event { e := rowEvent(0, 1); e.Completed = 5; return e }, "out of range"},
		{"negative duration", func() Event { e := rowEvent(0, 1); e.Dur = -time.Second; return e }, "duration"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorContains(t, tt.evt().Validate(), tt.want)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

var testRunID = UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-0000000000aa"))

func runEvent(stage Stage) Event {
	return Event{RunID: testRunID, TS: time.Now(), Stage: stage, Span: -1}
}

func rowEvent(span, completed int) Event {
	return Event{
		RunID:     testRunID,
		TS:        time.Now(),
		Stage:     StageRowDone,
		Span:      span,
		Completed: completed,
		Total:     completed,
		Status:    scrape.StatusSuccess,
		URL:       "https://example.com",
	}
}
