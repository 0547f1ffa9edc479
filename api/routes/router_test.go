package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/datatypes"

	"github.com/postpilot/postpilot-backend/internal/publishing"
	"github.com/postpilot/postpilot-backend/internal/scheduler"
	pkgAuth "github.com/postpilot/postpilot-backend/pkg/auth"
	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/metrics"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

type fakeScheduler struct {
	mu        sync.Mutex
	running   bool
	stopCtx   context.Context
	statusErr error
	report    scheduler.TickReport
	tickErr   error
}

func (f *fakeScheduler) Start(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeScheduler) Stop(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCtx = ctx
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeScheduler) Status(context.Context) (scheduler.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return scheduler.Status{}, f.statusErr
	}
	return scheduler.Status{
		Running:             f.running,
		PollIntervalSeconds: 60,
		WorkerID:            "worker-a",
		ScheduledCount:      3,
		RecentPublished:     []scheduler.RecentPost{},
	}, nil
}

func (f *fakeScheduler) RunOnce(context.Context) (scheduler.TickReport, error) {
	return f.report, f.tickErr
}

type fakeHistory struct {
	post     *models.Post
	attempts []models.PublishAttempt
}

func (f fakeHistory) Get(_ context.Context, id uuid.UUID) (*models.Post, error) {
	if f.post == nil || f.post.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "post not found")
	}
	return f.post, nil
}

func (f fakeHistory) ListAttempts(context.Context, uuid.UUID) ([]models.PublishAttempt, error) {
	return f.attempts, nil
}

type fakeCalendar struct {
	event *models.CalendarEvent
}

func (f fakeCalendar) FindByPost(context.Context, uuid.UUID) (*models.CalendarEvent, error) {
	if f.event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "calendar event not found")
	}
	return f.event, nil
}

type fakePermissionCache struct {
	invalidated []uuid.UUID
	err         error
}

func (f *fakePermissionCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakePublishers []publishing.PublisherHealth

func (f fakePublishers) Health() []publishing.PublisherHealth {
	return f
}

type harness struct {
	handler http.Handler
	sched   *fakeScheduler
	token   string
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		Ops: config.OpsConfig{JWTSecret: "secret", JWTIssuer: "postpilot"},
	}
	sched := &fakeScheduler{}
	if deps.Scheduler == nil {
		deps.Scheduler = sched
	}
	token, err := pkgAuth.MintOperatorToken(cfg.Ops, time.Now(), time.Hour, pkgAuth.OperatorTokenPayload{
		Subject: "oncall@postpilot",
		Scopes:  []string{pkgAuth.ScopeScheduler},
	})
	require.NoError(t, err)
	return &harness{handler: NewRouter(cfg, nil, deps), sched: sched, token: token}
}

func (h *harness) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t, Deps{DB: stubPinger{}})

	resp := h.do(t, http.MethodGet, "/health/live", "", false)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-PostPilot-Env"))
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = h.do(t, http.MethodGet, "/health/ready", "", false)
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	checks := data["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["db"])
	assert.Equal(t, "disabled", checks["redis"])
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	h := newHarness(t, Deps{DB: stubPinger{}, Redis: stubPinger{err: errors.New("dial tcp: refused")}})

	resp := h.do(t, http.MethodGet, "/health/ready", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "DEPENDENCY_ERROR")
}

func TestMetricsRouteServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulerMetrics(reg)
	m.IncPostProcessed(string(enums.PostStatusPublished))
	h := newHarness(t, Deps{Gatherer: reg})

	resp := h.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "scheduler_posts_processed_total")
}

func TestAdminRoutesRequireOperatorToken(t *testing.T) {
	h := newHarness(t, Deps{
		Posts:           fakeHistory{},
		PermissionCache: &fakePermissionCache{},
		Publishers:      fakePublishers{},
	})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/v1/scheduler/status"},
		{http.MethodPost, "/api/admin/v1/scheduler/start"},
		{http.MethodPost, "/api/admin/v1/scheduler/stop"},
		{http.MethodPost, "/api/admin/v1/scheduler/tick"},
		{http.MethodGet, "/api/admin/v1/posts/" + uuid.NewString() + "/attempts"},
		{http.MethodDelete, "/api/admin/v1/permissions/" + uuid.NewString() + "/cache"},
		{http.MethodGet, "/api/admin/v1/publishers"},
	} {
		resp := h.do(t, route.method, route.path, "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, route.path)
	}
	assert.False(t, h.sched.running)
}

func TestStartStopAreIdempotent(t *testing.T) {
	h := newHarness(t, Deps{})

	resp := h.do(t, http.MethodPost, "/api/admin/v1/scheduler/start", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decodeData(t, resp)["changed"])

	resp = h.do(t, http.MethodPost, "/api/admin/v1/scheduler/start", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	assert.Equal(t, false, data["changed"])
	assert.Equal(t, true, data["running"])

	resp = h.do(t, http.MethodGet, "/api/admin/v1/scheduler/status", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	data = decodeData(t, resp)
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "worker-a", data["worker_id"])
	assert.EqualValues(t, 3, data["scheduled_count"])

	resp = h.do(t, http.MethodPost, "/api/admin/v1/scheduler/stop", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decodeData(t, resp)["changed"])

	resp = h.do(t, http.MethodPost, "/api/admin/v1/scheduler/stop", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, decodeData(t, resp)["changed"])
}

func TestStopHonorsRequestedTimeout(t *testing.T) {
	h := newHarness(t, Deps{})
	h.sched.running = true

	resp := h.do(t, http.MethodPost, "/api/admin/v1/scheduler/stop", `{"timeout_seconds":5}`, true)
	require.Equal(t, http.StatusOK, resp.Code)

	deadline, ok := h.sched.stopCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, 2*time.Second)
}

func TestStopRejectsInvalidBody(t *testing.T) {
	h := newHarness(t, Deps{})
	h.sched.running = true

	resp := h.do(t, http.MethodPost, "/api/admin/v1/scheduler/stop", `{"timeout_seconds":0.5}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/admin/v1/scheduler/stop", `{"timeout_seconds":900}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "timeout_seconds")
	assert.True(t, h.sched.running)
}

func TestStatusDependencyFailure(t *testing.T) {
	sched := &fakeScheduler{statusErr: errors.New("db down")}
	h := newHarness(t, Deps{Scheduler: sched})

	resp := h.do(t, http.MethodGet, "/api/admin/v1/scheduler/status", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestTickReportsResultsAndPostFailures(t *testing.T) {
	postA, postB := uuid.New(), uuid.New()
	sched := &fakeScheduler{
		report: scheduler.TickReport{
			TickID:   "tick-1",
			Due:      2,
			Duration: 40 * time.Millisecond,
			Results: []scheduler.PostResult{
				{PostID: postA, Status: enums.PostStatusPublished},
				{PostID: postB, Conflict: true},
			},
		},
		tickErr: multierr.Combine(errors.New("persist outcome: db locked")),
	}
	h := newHarness(t, Deps{Scheduler: sched})

	resp := h.do(t, http.MethodPost, "/api/admin/v1/scheduler/tick", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	assert.Equal(t, "tick-1", data["tick_id"])
	assert.EqualValues(t, 2, data["due"])
	results := data["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, postA.String(), results[0].(map[string]any)["post_id"])
	assert.Equal(t, "published", results[0].(map[string]any)["status"])
	assert.Equal(t, true, results[1].(map[string]any)["conflict"])
	assert.Equal(t, []any{"persist outcome: db locked"}, data["errors"])
}

func TestTickFetchFailure(t *testing.T) {
	sched := &fakeScheduler{
		report:  scheduler.TickReport{TickID: "tick-2"},
		tickErr: errors.New("fetch due posts: connection refused"),
	}
	h := newHarness(t, Deps{Scheduler: sched})

	resp := h.do(t, http.MethodPost, "/api/admin/v1/scheduler/tick", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestPostAttemptsReturnsHistoryAndCalendarStatus(t *testing.T) {
	postID := uuid.New()
	scheduledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attemptedAt := scheduledAt.Add(30 * time.Second)
	history := fakeHistory{
		post: &models.Post{ID: postID, Status: enums.PostStatusFailed, ScheduledAt: &scheduledAt},
		attempts: []models.PublishAttempt{{
			PostID:      postID,
			Status:      enums.PostStatusFailed,
			AttemptedAt: attemptedAt,
			Outcome: datatypes.NewJSONType(types.AggregatedOutcome{
				Status: enums.PostStatusFailed,
				Failed: []enums.Platform{enums.PlatformTwitter},
				Error:  "twitter: rate limited",
			}),
		}},
	}
	h := newHarness(t, Deps{
		Posts:    history,
		Calendar: fakeCalendar{event: &models.CalendarEvent{PostID: postID, Status: enums.PostStatusFailed}},
	})

	resp := h.do(t, http.MethodGet, "/api/admin/v1/posts/"+postID.String()+"/attempts", "", true)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	data := decodeData(t, resp)
	assert.Equal(t, postID.String(), data["post_id"])
	assert.Equal(t, "failed", data["status"])
	assert.Equal(t, "failed", data["calendar_status"])
	attempts := data["attempts"].([]any)
	require.Len(t, attempts, 1)
	outcome := attempts[0].(map[string]any)["outcome"].(map[string]any)
	assert.Equal(t, "twitter: rate limited", outcome["error"])
}

func TestPostAttemptsWithoutCalendarEvent(t *testing.T) {
	postID := uuid.New()
	h := newHarness(t, Deps{
		Posts:    fakeHistory{post: &models.Post{ID: postID, Status: enums.PostStatusScheduled}},
		Calendar: fakeCalendar{},
	})

	resp := h.do(t, http.MethodGet, "/api/admin/v1/posts/"+postID.String()+"/attempts", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	_, hasCalendar := data["calendar_status"]
	assert.False(t, hasCalendar)
	assert.Equal(t, []any{}, data["attempts"])
}

func TestPostAttemptsErrors(t *testing.T) {
	h := newHarness(t, Deps{Posts: fakeHistory{}})

	resp := h.do(t, http.MethodGet, "/api/admin/v1/posts/not-a-uuid/attempts", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/admin/v1/posts/"+uuid.NewString()+"/attempts", "", true)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPermissionCacheInvalidate(t *testing.T) {
	cache := &fakePermissionCache{}
	h := newHarness(t, Deps{PermissionCache: cache})
	userID := uuid.New()

	resp := h.do(t, http.MethodDelete, "/api/admin/v1/permissions/"+userID.String()+"/cache", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []uuid.UUID{userID}, cache.invalidated)

	cache.err = errors.New("redis: connection refused")
	resp = h.do(t, http.MethodDelete, "/api/admin/v1/permissions/"+userID.String()+"/cache", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestOptionalOperatorRoutesAreUnmountedWithoutDeps(t *testing.T) {
	h := newHarness(t, Deps{})

	resp := h.do(t, http.MethodDelete, "/api/admin/v1/permissions/"+uuid.NewString()+"/cache", "", true)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = h.do(t, http.MethodGet, "/api/admin/v1/publishers", "", true)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPublishersReportBreakerState(t *testing.T) {
	h := newHarness(t, Deps{Publishers: fakePublishers{
		{Platform: enums.PlatformTwitter, Capabilities: "text|image"},
		{Platform: enums.PlatformFacebook, Capabilities: "text|image|schedule", BreakerOpen: true},
	}})

	resp := h.do(t, http.MethodGet, "/api/admin/v1/publishers", "", true)
	require.Equal(t, http.StatusOK, resp.Code)
	publishers := decodeData(t, resp)["publishers"].([]any)
	require.Len(t, publishers, 2)
	assert.Equal(t, false, publishers[0].(map[string]any)["breaker_open"])
	assert.Equal(t, "facebook", publishers[1].(map[string]any)["platform"])
	assert.Equal(t, true, publishers[1].(map[string]any)["breaker_open"])
}
