package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/model-router/models"
	"github.com/upb/model-router/repositories"
	"github.com/upb/model-router/services/routing"
)

// Service handles asynchronous persistence of routing decisions. Recording
// is best-effort: a full buffer drops the event with a warning instead of
// blocking the routing path.
type Service struct {
	repo        repositories.DecisionRepository
	logger      *zap.Logger
	eventChan   chan *models.DecisionRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// Config holds configuration for the audit service
type Config struct {
	BufferSize  int
	WorkerCount int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new audit service
func NewService(repo repositories.DecisionRepository, logger *zap.Logger, config Config) *Service {
	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.DecisionRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service, waiting for pending records to
// be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_records", len(s.eventChan)))

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record implements routing.DecisionRecorder. It never blocks: when the
// buffer is full the record is dropped.
func (s *Service) Record(ctx context.Context, decision *routing.Decision, prompt string) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}

	record := models.NewDecisionRecord(decision, prompt)

	select {
	case s.eventChan <- record:
	default:
		s.logger.Warn("decision buffer full, dropping record",
			zap.String("selected_id", record.SelectedID),
			zap.String("strategy", record.Strategy))
	}
}

// ListRecent returns the most recent decision records, newest first
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*models.DecisionRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}

// worker drains records from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for record := range s.eventChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.Insert(ctx, record); err != nil {
			s.logger.Error("failed to persist decision record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("selected_id", record.SelectedID))
		}
		cancel()
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize     int
	PendingRecords int
	WorkerCount    int
	Started        bool
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingRecords: len(s.eventChan),
		WorkerCount:    s.workerCount,
		Started:        s.started,
	}
}
