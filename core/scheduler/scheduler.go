package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"acp-node/core/job"
	"acp-node/core/memo"
	"acp-node/core/models"
)

// Handler reacts to job events
type Handler interface {
	OnNewTask(ctx context.Context, j *job.Job, memoToSign *memo.Memo) error
	OnEvaluate(ctx context.Context, j *job.Job) error
}

// JobFetcher loads the current snapshot of a job
type JobFetcher interface {
	GetJob(ctx context.Context, jobID uint64) (*job.Job, error)
}

// Recorder receives scheduler telemetry
type Recorder interface {
	EventHandled(eventType string, outcome string)
	QueueDepth(n int)
}

type noopRecorder struct{}

func (noopRecorder) EventHandled(string, string) {}
func (noopRecorder) QueueDepth(int)              {}

// Outcomes reported for each event
const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Scheduler dispatches job events to a handler with a pool of workers
type Scheduler struct {
	fetcher  JobFetcher
	handler  Handler
	queue    *EventQueue
	workers  int
	interval time.Duration
	locks    *jobLocks
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// Option customizes a scheduler
type Option func(*Scheduler)

// WithRecorder reports handled events and queue depth to r
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces the clock used to detect expired memos
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a new scheduler
func NewScheduler(fetcher JobFetcher, handler Handler, workers int, logger *slog.Logger, opts ...Option) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		fetcher:  fetcher,
		handler:  handler,
		queue:    NewEventQueue(),
		workers:  workers,
		interval: 5 * time.Second,
		locks:    newJobLocks(),
		recorder: noopRecorder{},
		logger:   logger,
		now:      time.Now,
		wake:     make(chan struct{}, workers),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the workers until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Enqueue adds an event to the queue
func (s *Scheduler) Enqueue(event *models.JobEvent) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}
	s.queue.Enqueue(event)
	s.recorder.QueueDepth(s.queue.Size())
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		for {
			event := s.queue.PopEvent()
			if event == nil {
				break
			}
			s.recorder.QueueDepth(s.queue.Size())
			outcome, err := s.process(ctx, event)
			if err != nil {
				s.logger.Error("failed to handle job event",
					"worker", worker, "event_id", event.ID, "job_id", event.Job.ID, "type", string(event.Type), "error", err)
			}
			s.recorder.EventHandled(string(event.Type), outcome)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// process re-fetches the job so a stale event never acts twice
func (s *Scheduler) process(ctx context.Context, event *models.JobEvent) (string, error) {
	unlock := s.locks.lock(event.Job.ID)
	defer unlock()

	logger := s.logger.With("job_id", event.Job.ID, "event_id", event.ID, "type", string(event.Type))

	fresh, err := s.fetcher.GetJob(ctx, event.Job.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to refresh job: %w", err)
	}
	if fresh.IsTerminal() {
		logger.Debug("skipping event for finished job", "phase", fresh.Phase.String())
		return OutcomeSkipped, nil
	}

	switch event.Type {
	case models.EventNewTask:
		var target *memo.Memo
		if event.MemoToSign != nil {
			target = fresh.Memo(*event.MemoToSign)
			if target == nil || !target.IsPending() {
				logger.Debug("skipping event for memo no longer pending", "memo_id", *event.MemoToSign)
				return OutcomeSkipped, nil
			}
			if target.IsExpired(s.now()) {
				logger.Info("skipping expired memo", "memo_id", target.ID)
				return OutcomeSkipped, nil
			}
		}
		return outcomeOf(s.handler.OnNewTask(ctx, fresh, target))
	case models.EventEvaluate:
		return outcomeOf(s.handler.OnEvaluate(ctx, fresh))
	default:
		return OutcomeFailed, fmt.Errorf("unknown event type %q", event.Type)
	}
}

func outcomeOf(err error) (string, error) {
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeHandled, nil
}

// jobLocks serializes events of one job while different jobs run concurrently
type jobLocks struct {
	mu    sync.Mutex
	locks map[uint64]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[uint64]*jobLock)}
}

func (l *jobLocks) lock(jobID uint64) func() {
	l.mu.Lock()
	jl, ok := l.locks[jobID]
	if !ok {
		jl = &jobLock{}
		l.locks[jobID] = jl
	}
	jl.refs++
	l.mu.Unlock()

	jl.mu.Lock()
	return func() {
		jl.mu.Unlock()
		l.mu.Lock()
		jl.refs--
		if jl.refs == 0 {
			delete(l.locks, jobID)
		}
		l.mu.Unlock()
	}
}
