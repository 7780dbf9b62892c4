package settings

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"go.uber.org/zap"
)

// Syncer performs the pushes the scheduler plans.
type Syncer interface {
	SyncSetting(ctx context.Context, userID string, key Key) Outcome
	SyncAllPending(ctx context.Context, userID string) Outcome
}

// Connectivity gates jobs on the remote being reachable.
type Connectivity interface {
	Online() bool
}

// SchedulerConfig tunes job timing.
type SchedulerConfig struct {
	Debounce         time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	PeriodicInterval time.Duration
	NetworkPoll      time.Duration
}

func (c *SchedulerConfig) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
	if c.PeriodicInterval <= 0 {
		c.PeriodicInterval = 15 * time.Minute
	}
	if c.NetworkPoll <= 0 {
		c.NetworkPoll = time.Second
	}
}

// Scheduler runs setting pushes in the background. One job exists per
// (user, key): scheduling while a job waits restarts its debounce, and
// scheduling while it runs queues exactly one follow-up run. Failed runs
// are retried with exponential backoff. Jobs wait while offline.
type Scheduler struct {
	syncer Syncer
	net    Connectivity
	bus    *bus.Bus
	logger *zap.Logger
	cfg    SchedulerConfig

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     map[string]*job
	periodic map[string]bool
	wg       sync.WaitGroup
}

type job struct {
	name    string
	reset   chan struct{}
	running bool
	again   bool
}

// NewScheduler creates a scheduler. net may be nil to never gate on
// connectivity.
func NewScheduler(syncer Syncer, net Connectivity, b *bus.Bus, logger *zap.Logger, cfg SchedulerConfig) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		syncer:   syncer,
		net:      net,
		bus:      b,
		logger:   logger,
		cfg:      cfg,
		jobs:     make(map[string]*job),
		periodic: make(map[string]bool),
	}
}

// Start begins scheduling pushes for settings changed on the bus.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	ctx = s.ctx
	s.mu.Unlock()

	events, unsub := s.bus.Subscribe(bus.KindSettingsChanged, 64)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		for {
			select {
			case evt := <-events:
				if c, ok := evt.Payload.(Changed); ok {
					s.ScheduleSettingSync(c.UserID, c.Key)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels all jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ScheduleSettingSync plans a push of one setting after the debounce delay.
func (s *Scheduler) ScheduleSettingSync(userID string, key Key) {
	name := jobName(userID, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	if j, ok := s.jobs[name]; ok {
		if j.running {
			j.again = true
			return
		}
		select {
		case j.reset <- struct{}{}:
		default:
		}
		return
	}

	j := &job{name: name, reset: make(chan struct{}, 1)}
	s.jobs[name] = j
	s.wg.Add(1)
	go s.run(s.ctx, j, func(ctx context.Context) Outcome {
		return s.syncer.SyncSetting(ctx, userID, key)
	})
}

// SchedulePeriodicSync starts the periodic full sync for a user unless it is
// already running.
func (s *Scheduler) SchedulePeriodicSync(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil || s.periodic[userID] {
		return
	}
	s.periodic[userID] = true
	ctx := s.ctx

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.PeriodicInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.waitOnline(ctx) {
					return
				}
				outcome := s.syncer.SyncAllPending(ctx, userID)
				s.logger.Debug("periodic settings sync", zap.String("user_id", userID), zap.Stringer("outcome", outcome))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Pending returns the names of scheduled or running jobs.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Scheduler) run(ctx context.Context, j *job, work func(context.Context) Outcome) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.jobs[j.name] == j {
			delete(s.jobs, j.name)
		}
		s.mu.Unlock()
	}()

	delay := s.cfg.Debounce
	attempt := 0
	for {
		if !s.wait(ctx, j, delay) || !s.waitOnline(ctx) {
			return
		}

		s.mu.Lock()
		j.running = true
		j.again = false
		s.mu.Unlock()

		outcome := work(ctx)

		s.mu.Lock()
		j.running = false
		again := j.again
		j.again = false
		finished := outcome != OutcomeRetry && !again
		if finished {
			delete(s.jobs, j.name)
		}
		s.mu.Unlock()

		s.logger.Debug("settings job finished", zap.String("job", j.name), zap.Stringer("outcome", outcome))
		switch {
		case finished:
			return
		case outcome == OutcomeRetry:
			attempt++
			delay = s.backoff(attempt)
		default:
			attempt = 0
			delay = s.cfg.Debounce
		}
	}
}

// wait sleeps for d, restarting the delay whenever the job is rescheduled.
func (s *Scheduler) wait(ctx context.Context, j *job, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case <-j.reset:
			timer.Reset(d)
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) waitOnline(ctx context.Context) bool {
	if s.net == nil || s.net.Online() {
		return true
	}
	ticker := time.NewTicker(s.cfg.NetworkPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.net.Online() {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.cfg.BackoffBase << min(attempt-1, 16)
	return min(d, s.cfg.BackoffMax)
}

func jobName(userID string, key Key) string {
	return fmt.Sprintf("sync_setting_%s_%s", userID, key)
}
