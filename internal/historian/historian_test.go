// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan cache.ActionRecord
}

func (s *chanSource) Pop(ctx context.Context, timeout time.Duration) (cache.ActionRecord, bool, error) {
	select {
	case rec := <-s.ch:
		return rec, true, nil
	case <-time.After(timeout):
		return cache.ActionRecord{}, false, nil
	case <-ctx.Done():
		return cache.ActionRecord{}, false, ctx.Err()
	}
}

type memSink struct {
	mu        sync.Mutex
	batches   [][]cache.ActionRecord
	abandoned []uuid.UUID
	fail      error
}

func (s *memSink) InsertGameActions(_ context.Context, records []cache.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *memSink) MarkGameAbandoned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, id)
	return nil
}

func (s *memSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newService(sink *memSink, src Source, batch int) *Service {
	logger, _ := test.NewNullLogger()
	return New(src, sink, logger, Config{
		BatchSize:     batch,
		FlushInterval: 20 * time.Millisecond,
		Inactivity:    time.Minute,
		PopTimeout:    5 * time.Millisecond,
	})
}

func record(gameID uuid.UUID, i int) cache.ActionRecord {
	return cache.ActionRecord{GameID: gameID, ActionIndex: i, ActionType: "draw", Timestamp: time.Now().UnixMilli()}
}

func TestAdd_FlushesFullBatch(t *testing.T) {
	sink := &memSink{}
	s := newService(sink, nil, 3)
	gameID := uuid.New()

	s.Add(context.Background(), record(gameID, 1))
	s.Add(context.Background(), record(gameID, 2))
	assert.Zero(t, sink.total())
	assert.Equal(t, 2, s.Pending())

	s.Add(context.Background(), record(gameID, 3))
	assert.Equal(t, 3, sink.total())
	assert.Zero(t, s.Pending())
	require.Len(t, sink.batches, 1)
	assert.Equal(t, 3, sink.batches[0][2].ActionIndex)
}

func TestFlush_KeepsBatchOnFailure(t *testing.T) {
	sink := &memSink{fail: errors.New("db down")}
	s := newService(sink, nil, 10)

	s.Add(context.Background(), record(uuid.New(), 1))
	s.Flush(context.Background())
	assert.Equal(t, 1, s.Pending())

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()
	s.Flush(context.Background())
	assert.Zero(t, s.Pending())
	assert.Equal(t, 1, sink.total())
}

func TestFlush_BoundsBacklog(t *testing.T) {
	sink := &memSink{fail: errors.New("db down")}
	s := newService(sink, nil, 1)
	for i := 0; i < maxPendingBatches+5; i++ {
		s.Add(context.Background(), record(uuid.New(), i))
	}
	assert.Equal(t, maxPendingBatches, s.Pending())
}

func TestRun_DrainsSourceAndFlushesOnShutdown(t *testing.T) {
	sink := &memSink{}
	src := &chanSource{ch: make(chan cache.ActionRecord, 10)}
	s := newService(sink, src, 100)
	gameID := uuid.New()
	for i := 1; i <= 5; i++ {
		src.ch <- record(gameID, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.total() == 5 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("historian did not stop")
	}
}

func TestSweepInactive(t *testing.T) {
	sink := &memSink{}
	s := newService(sink, nil, 10)
	start := time.Now()
	s.now = func() time.Time { return start }

	quiet, busy := uuid.New(), uuid.New()
	s.Add(context.Background(), record(quiet, 1))
	s.now = func() time.Time { return start.Add(50 * time.Second) }
	s.Add(context.Background(), record(busy, 1))

	s.sweepInactive(context.Background(), start.Add(90*time.Second))
	assert.Equal(t, []uuid.UUID{quiet}, sink.abandoned)

	s.sweepInactive(context.Background(), start.Add(90*time.Second))
	assert.Len(t, sink.abandoned, 1, "a game is marked once")
}
