package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"tally/internal/config"
)

// Job is a unit of background work run on a fixed interval.
type Job interface {
	Name() string
	Run() error
}

type scheduledJob struct {
	job      Job
	interval time.Duration
	ticker   *time.Ticker
}

// Scheduler runs background jobs. It implements cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	// Serializes job executions so two jobs never write at once.
	processingMutex sync.Mutex
	isProcessing    bool

	jobs []*scheduledJob
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler with the retention and GeoLite jobs.
func NewScheduler(dbManager cartridge.DBManager, logger *slog.Logger) (*Scheduler, error) {
	cfg := config.GetConfig()

	s := newScheduler(logger)
	s.Every(24*time.Hour, NewCleanupJob(dbManager, logger, cfg))
	s.Every(time.Duration(cfg.JobIntervalSeconds)*time.Second, NewGeoLiteUpdaterJob(dbManager, logger, cfg))
	return s, nil
}

func newScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
	}
}

// Every registers job to run once at start and then every interval.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.jobs = append(s.jobs, &scheduledJob{job: job, interval: interval})
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, scheduled := range s.jobs {
		s.start(scheduled)
	}

	return nil
}

func (s *Scheduler) start(scheduled *scheduledJob) {
	name := scheduled.job.Name()
	s.logger.Info("Starting job", slog.String("job", name), slog.Duration("interval", scheduled.interval))
	scheduled.ticker = time.NewTicker(scheduled.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeJobSafely(name, scheduled.job.Run)

		for {
			select {
			case <-scheduled.ticker.C:
				s.executeJobSafely(name, scheduled.job.Run)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", name))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, scheduled := range s.jobs {
		if scheduled.ticker != nil {
			scheduled.ticker.Stop()
		}
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
