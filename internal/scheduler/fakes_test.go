package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/internal/permissions"
	"github.com/postpilot/postpilot-backend/internal/posts"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	dbtypes "github.com/postpilot/postpilot-backend/pkg/db/types"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "scheduler-test", Output: io.Discard})
}

type markCall struct {
	postID  uuid.UUID
	owner   string
	outcome types.AggregatedOutcome
}

type fakePosts struct {
	mu         sync.Mutex
	batches    [][]models.Post
	claimCalls int
	claimOpts  []posts.ClaimOptions
	claimErr   error
	panicOnce  bool
	marked     []markCall
	markErrs   map[uuid.UUID]error
	renewErrs  map[uuid.UUID]error
	renewed    []uuid.UUID
	scheduled  int64
	recent     []models.Post
}

func (f *fakePosts) ClaimDue(_ context.Context, _ time.Time, opts posts.ClaimOptions) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	f.claimOpts = append(f.claimOpts, opts)
	if f.panicOnce {
		f.panicOnce = false
		panic("connection pool exploded")
	}
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakePosts) RenewClaim(_ context.Context, postID uuid.UUID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.renewErrs[postID]; err != nil {
		return err
	}
	f.renewed = append(f.renewed, postID)
	return nil
}

func (f *fakePosts) MarkTerminal(_ context.Context, postID uuid.UUID, owner string, outcome types.AggregatedOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErrs[postID]; err != nil {
		return err
	}
	f.marked = append(f.marked, markCall{postID: postID, owner: owner, outcome: outcome})
	return nil
}

func (f *fakePosts) CountScheduled(context.Context) (int64, error) {
	return f.scheduled, nil
}

func (f *fakePosts) RecentPublished(_ context.Context, limit int) ([]models.Post, error) {
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakePosts) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimCalls
}

func (f *fakePosts) markedCalls() []markCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]markCall(nil), f.marked...)
}

type fakeCalendar struct {
	mu     sync.Mutex
	synced map[uuid.UUID]enums.PostStatus
	err    error
}

func (f *fakeCalendar) SyncStatus(_ context.Context, postID uuid.UUID, status enums.PostStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.synced == nil {
		f.synced = map[uuid.UUID]enums.PostStatus{}
	}
	f.synced[postID] = status
	return nil
}

type fakeOracle struct {
	decision permissions.Decision
	err      error
	calls    int
}

func (f *fakeOracle) CanAutoPost(context.Context, uuid.UUID) (permissions.Decision, error) {
	f.calls++
	return f.decision, f.err
}

func allowAll() *fakeOracle {
	return &fakeOracle{decision: permissions.Decision{Allowed: true, Tier: enums.PlanTierPro}}
}

type dispatchFunc func(ctx context.Context, post models.Post) []types.PlatformOutcome

func (f dispatchFunc) Dispatch(ctx context.Context, post models.Post) []types.PlatformOutcome {
	return f(ctx, post)
}

// succeedAll reports success for every requested platform and counts calls.
type succeedAll struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (s *succeedAll) Dispatch(_ context.Context, post models.Post) []types.PlatformOutcome {
	s.mu.Lock()
	s.calls = append(s.calls, post.ID)
	s.mu.Unlock()
	out := make([]types.PlatformOutcome, 0, len(post.Platforms))
	for _, p := range post.Platforms {
		out = append(out, types.Succeeded(p, "ext-"+string(p), ""))
	}
	return out
}

func (s *succeedAll) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func duePost(platforms ...enums.Platform) models.Post {
	at := time.Now().Add(-time.Second).UTC()
	return models.Post{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Caption:     "scheduled caption",
		Platforms:   dbtypes.PlatformList(platforms),
		Status:      enums.PostStatusScheduled,
		ScheduledAt: &at,
	}
}

var errStorage = errors.New("storage unavailable")
