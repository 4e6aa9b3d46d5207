package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/engine"
	"github.com/pwstlabs/linkedfate/internal/ingest/portsim"
)

// Job names used as cache keys
const (
	JobAnomalyDetection = "anomaly_detection"
	JobRiskEvaluation   = "risk_evaluation"
	JobPortSimulation   = "port_simulation"
)

// Intervals holds the cadence for each periodic job
type Intervals struct {
	Detection  time.Duration
	Evaluation time.Duration
	Simulation time.Duration
}

// DefaultIntervals returns the standard job cadences
func DefaultIntervals() Intervals {
	return Intervals{
		Detection:  time.Hour,
		Evaluation: 5 * time.Minute,
		Simulation: time.Hour,
	}
}

// Scheduler manages the periodic detection and evaluation cycles
type Scheduler struct {
	engine    *engine.Engine
	simulator *portsim.Simulator
	simWriter portsim.Writer
	cache     *StateCache
	intervals Intervals
	log       *zap.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
}

// NewScheduler creates a new scheduler
func NewScheduler(eng *engine.Engine, intervals Intervals, log *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:    eng,
		cache:     NewStateCache(),
		intervals: intervals,
		log:       log,
	}
}

// SetSimulator enables the synthetic port feed (optional)
func (s *Scheduler) SetSimulator(sim *portsim.Simulator, w portsim.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulator = sim
	s.simWriter = w
}

// Start begins the periodic jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	sim := s.simulator
	s.mu.Unlock()

	jobs := 2
	if sim != nil {
		jobs++
		s.wg.Add(1)
		go s.runLoop(ctx, JobPortSimulation, s.intervals.Simulation, s.simulateOnce)
	}

	s.wg.Add(2)
	go s.runLoop(ctx, JobAnomalyDetection, s.intervals.Detection, s.detectOnce)
	go s.runLoop(ctx, JobRiskEvaluation, s.intervals.Evaluation, s.evaluateOnce)

	s.log.Info("scheduler started", zap.Int("jobs", jobs))
	return nil
}

// Stop stops the scheduler and waits for in-flight cycles to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping scheduler")
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// runLoop runs a job immediately and then on its ticker until cancelled
func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context, time.Duration)) {
	defer s.wg.Done()

	run(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx, interval)
		}
	}
}

// detectOnce performs a single anomaly detection cycle
func (s *Scheduler) detectOnce(ctx context.Context, interval time.Duration) {
	summary, err := s.engine.RunAnomalyDetection(ctx, 0)
	if err != nil {
		s.log.Error("anomaly detection cycle failed", zap.Error(err))
	}

	s.cache.Set(JobAnomalyDetection, &JobState{
		Summary:   summary,
		Err:       err,
		UpdatedAt: time.Now(),
		TTL:       staleAfter(interval),
	})
}

// evaluateOnce performs a single risk evaluation cycle
func (s *Scheduler) evaluateOnce(ctx context.Context, interval time.Duration) {
	summary, err := s.engine.RunRiskEvaluation(ctx)
	if err != nil {
		s.log.Error("risk evaluation cycle failed", zap.Error(err))
	}

	s.cache.Set(JobRiskEvaluation, &JobState{
		Summary:   summary,
		Err:       err,
		UpdatedAt: time.Now(),
		TTL:       staleAfter(interval),
	})
}

// simulateOnce advances the synthetic port feed by one tick
func (s *Scheduler) simulateOnce(ctx context.Context, interval time.Duration) {
	s.mu.RLock()
	sim := s.simulator
	w := s.simWriter
	s.mu.RUnlock()
	if sim == nil {
		return
	}

	err := sim.Tick(ctx, w, time.Now())
	if err != nil {
		s.log.Error("port simulation tick failed", zap.Error(err))
	}

	s.cache.Set(JobPortSimulation, &JobState{
		Err:       err,
		UpdatedAt: time.Now(),
		TTL:       staleAfter(interval),
	})
}

// staleAfter allows one missed run plus slack before a job counts as stale
func staleAfter(interval time.Duration) time.Duration {
	return 2*interval + interval/2
}

// GetCache returns the state cache
func (s *Scheduler) GetCache() *StateCache {
	return s.cache
}

// RunDetectionNow forces an immediate anomaly detection cycle
func (s *Scheduler) RunDetectionNow(ctx context.Context) {
	s.detectOnce(ctx, s.intervals.Detection)
}

// RunEvaluationNow forces an immediate risk evaluation cycle
func (s *Scheduler) RunEvaluationNow(ctx context.Context) {
	s.evaluateOnce(ctx, s.intervals.Evaluation)
}
