package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/pkg/window"

	"github.com/rs/zerolog/log"
)

// RecordSink receives one activity record per tick.
type RecordSink interface {
	Append(rec models.ActivityRecord) error
}

// Stats counts what a sampling loop has produced so far.
type Stats struct {
	Samples  int64
	Failures int64
}

type Service struct {
	interval  time.Duration
	sessionID string
	detector  window.Detector
	sink      RecordSink
	errors    ErrorStore
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	samples  atomic.Int64
	failures atomic.Int64
}

// NewService creates the window sampler. store may be nil, in which case sample
// errors are only logged.
func NewService(cfg *config.Config, detector window.Detector, sink RecordSink, store ErrorStore, sessionID string) *Service {
	return &Service{
		interval:  cfg.Session.Interval,
		sessionID: sessionID,
		detector:  detector,
		sink:      sink,
		errors:    store,
		now:       time.Now,
	}
}

// Start samples immediately and then once per interval until ctx is cancelled or
// Stop is called. A failed sample never ends the loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("tracker is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	log.Info().Dur("interval", s.interval).Str("session", s.sessionID).Msg("Starting window sampler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tickLogged(s.now())

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Window sampler stopped by context")
			return ctx.Err()

		case <-stop:
			log.Debug().Msg("Window sampler stopped")
			return nil

		case <-ticker.C:
			s.tickLogged(s.now())
		}
	}
}

// Stop ends the loop and waits for the in-flight tick to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	select {
	case <-stop:
	default:
		close(stop)
	}
	s.mu.Unlock()

	<-done
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns the counters accumulated by Tick.
func (s *Service) Stats() Stats {
	return Stats{Samples: s.samples.Load(), Failures: s.failures.Load()}
}

func (s *Service) tickLogged(now time.Time) {
	rec, err := s.Tick(now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to append activity record")
		return
	}
	if !rec.IsPlaceholder() {
		log.Debug().Str("app", rec.Application).Str("title", rec.WindowTitle).Msg("Sampled")
	}
}

// Tick takes one sample and appends exactly one record: the focused window, or a
// placeholder when the query fails. Only a failure of the sink is returned.
func (s *Service) Tick(now time.Time) (models.ActivityRecord, error) {
	rec, sampleErr := s.sample(now)
	if sampleErr != nil {
		s.failures.Add(1)
		Report(s.errors, s.sessionID, sampleErr)
	}

	if err := s.sink.Append(rec); err != nil {
		return rec, fmt.Errorf("failed to append record: %w", err)
	}
	s.samples.Add(1)

	return rec, nil
}

func (s *Service) sample(now time.Time) (models.ActivityRecord, *TransientSampleError) {
	info, err := s.detector.GetFocusedWindow()
	if err != nil {
		return models.Placeholder(now), NewTransientError(models.SourceWindow, now, err)
	}
	if info == nil || info.AppName == "" {
		return models.Placeholder(now), NewTransientError(models.SourceWindow, now, window.ErrNoActiveWindow)
	}

	return models.ActivityRecord{
		Timestamp:   now,
		Application: info.AppName,
		WindowTitle: info.WindowTitle,
	}, nil
}
