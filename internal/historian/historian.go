// internal/historian/historian.go pops game actions off the queue and persists them in batches.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/sirupsen/logrus"
)

// Source yields queued action records.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (cache.ActionRecord, bool, error)
}

// Sink persists action records.
type Sink interface {
	InsertGameActions(ctx context.Context, records []cache.ActionRecord) error
	MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) error
}

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// Inactivity is how long a game may go without actions before it is marked abandoned.
	Inactivity time.Duration
	PopTimeout time.Duration
}

// maxPendingBatches bounds how many batches of unflushed records are kept while the sink is failing.
const maxPendingBatches = 10

// Service batches records from a Source into a Sink and marks quiet games abandoned.
type Service struct {
	source Source
	sink   Sink
	logger *logrus.Logger
	cfg    Config
	now    func() time.Time

	batchMu sync.Mutex
	batch   []cache.ActionRecord

	activityMu   sync.Mutex
	lastActivity map[uuid.UUID]time.Time
}

func New(source Source, sink Sink, logger *logrus.Logger, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 10 * time.Minute
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:       source,
		sink:         sink,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
		batch:        make([]cache.ActionRecord, 0, cfg.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run reads until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	go s.inactivityLoop(ctx)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	s.logger.Info("njuka-historian service started.")
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			s.logger.Info("njuka-historian shutting down.")
			return

		case <-ticker.C:
			s.Flush(ctx)

		default:
			record, ok, err := s.source.Pop(ctx, s.cfg.PopTimeout)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.WithError(err).Error("pop action record")
				}
				continue
			}
			if !ok {
				continue
			}
			s.Add(ctx, record)
		}
	}
}

// Add appends a record to the batch, flushing when the batch is full.
func (s *Service) Add(ctx context.Context, record cache.ActionRecord) {
	s.activityMu.Lock()
	s.lastActivity[record.GameID] = s.now()
	s.activityMu.Unlock()

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, record)
	if len(s.batch) >= s.cfg.BatchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes the current batch in a single transaction.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

// flushLocked assumes batchMu is held. A failed batch stays queued for the next flush.
func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]cache.ActionRecord, len(s.batch))
	copy(batchCopy, s.batch)

	if err := s.sink.InsertGameActions(ctx, batchCopy); err != nil {
		s.logger.WithError(err).WithField("pending", len(batchCopy)).Error("flush game actions")
		if limit := s.cfg.BatchSize * maxPendingBatches; len(s.batch) > limit {
			dropped := len(s.batch) - limit
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
			s.logger.WithField("dropped", dropped).Warn("historian backlog full, dropping oldest actions")
		}
		return
	}
	s.batch = s.batch[:0]
	s.logger.Debugf("Flushed %d actions to DB.", len(batchCopy))
}

// Pending returns the number of buffered records.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepInactive(ctx, s.now())
		}
	}
}

// sweepInactive marks every game quiet for longer than the inactivity window as abandoned.
func (s *Service) sweepInactive(ctx context.Context, now time.Time) {
	s.activityMu.Lock()
	var stale []uuid.UUID
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.cfg.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.activityMu.Unlock()

	for _, id := range stale {
		if err := s.sink.MarkGameAbandoned(ctx, id); err != nil {
			s.logger.WithError(err).WithField("game", id).Error("mark game abandoned")
			continue
		}
		s.logger.WithField("game", id).Info("marked game abandoned due to inactivity")
	}
}
