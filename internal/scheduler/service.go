// Package scheduler runs the publish loop: every tick it claims due posts,
// gates them on the owner's plan, dispatches them to their platforms and
// records a terminal status.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/internal/permissions"
	"github.com/postpilot/postpilot-backend/internal/posts"
	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/metrics"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultRestartDelay = 5 * time.Second
	defaultRecentLimit  = 5

	// ReasonPermissionUnavailable is recorded when the plan check itself fails.
	ReasonPermissionUnavailable = "permission check unavailable"
	reasonPermissionDenied      = "auto-posting not permitted"
)

type postStore interface {
	ClaimDue(ctx context.Context, now time.Time, opts posts.ClaimOptions) ([]models.Post, error)
	RenewClaim(ctx context.Context, postID uuid.UUID, owner string, until time.Time) error
	MarkTerminal(ctx context.Context, postID uuid.UUID, owner string, outcome types.AggregatedOutcome) error
	CountScheduled(ctx context.Context) (int64, error)
	RecentPublished(ctx context.Context, limit int) ([]models.Post, error)
}

type calendarSyncer interface {
	SyncStatus(ctx context.Context, postID uuid.UUID, status enums.PostStatus) error
}

type platformDispatcher interface {
	Dispatch(ctx context.Context, post models.Post) []types.PlatformOutcome
}

// ServiceParams configure the scheduler. Calendar and Metrics are optional.
type ServiceParams struct {
	Logger     *logger.Logger
	Posts      postStore
	Calendar   calendarSyncer
	Oracle     permissions.Oracle
	Dispatcher platformDispatcher
	Metrics    *metrics.SchedulerMetrics
	Config     config.SchedulerConfig
	WorkerID   string

	Clock        func() time.Time
	RestartDelay time.Duration
}

// Service owns the loop lifecycle. Ticks never overlap.
type Service struct {
	logg       *logger.Logger
	posts      postStore
	calendar   calendarSyncer
	oracle     permissions.Oracle
	dispatcher platformDispatcher
	metrics    *metrics.SchedulerMetrics

	interval     time.Duration
	batchSize    int
	lease        time.Duration
	recentLimit  int
	workerID     string
	clock        func() time.Time
	restartDelay time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastTick *time.Time

	tickMu sync.Mutex
}

// NewService builds a stopped scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Posts == nil {
		return nil, errors.New("post store required")
	}
	if params.Oracle == nil {
		return nil, errors.New("permission oracle required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("dispatcher required")
	}

	cfg := params.Config
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	recent := cfg.RecentLimit
	if recent <= 0 {
		recent = defaultRecentLimit
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	restart := params.RestartDelay
	if restart <= 0 {
		restart = defaultRestartDelay
	}
	workerID := params.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}

	return &Service{
		logg:         params.Logger,
		posts:        params.Posts,
		calendar:     params.Calendar,
		oracle:       params.Oracle,
		dispatcher:   params.Dispatcher,
		metrics:      params.Metrics,
		interval:     interval,
		batchSize:    cfg.BatchSize,
		lease:        cfg.ClaimLease,
		recentLimit:  recent,
		workerID:     workerID,
		clock:        clock,
		restartDelay: restart,
	}, nil
}

// Start begins ticking. The first tick runs immediately. ctx is only used for
// logging the start. It returns false if the loop was already running.
func (s *Service) Start(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	// The loop outlives the caller; it keeps none of the caller's values.
	loopCtx, cancel := context.WithCancel(s.logg.WithField(context.Background(), "worker_id", s.workerID))
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":         "scheduler.started",
		"poll_interval": s.interval.String(),
		"worker_id":     s.workerID,
	}), "scheduler started")
	return true
}

// Stop cancels the loop and waits for the in-flight tick to finish or for ctx
// to expire. It returns false if the loop was not running.
func (s *Service) Stop(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		s.logg.Warn(ctx, "scheduler stop returned before the in-flight tick finished")
	}
	s.logg.Info(s.logg.WithField(ctx, "event", "scheduler.stopped"), "scheduler stopped")
	return true
}

// Run starts the loop and blocks until ctx is done, then stops it.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.Start(ctx)
	<-ctx.Done()
	s.Stop(context.WithoutCancel(ctx))
	return nil
}

// Running reports whether the loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := s.runLoop(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		s.metrics.IncLoopFailure("loop")
		s.logg.Error(s.logg.WithField(ctx, "event", "scheduler.loop_failure"), "loop failure recovered", err)

		timer := time.NewTimer(s.restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runLoop ticks until ctx is done. A panic ends it with an error so loop can
// restart it.
func (s *Service) runLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler loop panic: %v", r)
		}
	}()

	s.tickAndLog(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tickAndLog(ctx)
		}
	}
}

func (s *Service) tickAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "tick finished with errors", err)
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}
