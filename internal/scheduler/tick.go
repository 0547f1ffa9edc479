package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/postpilot/postpilot-backend/internal/permissions"
	"github.com/postpilot/postpilot-backend/internal/posts"
	"github.com/postpilot/postpilot-backend/internal/publishing"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// TickReport summarizes one pass over the due posts.
type TickReport struct {
	TickID   string
	Due      int
	Results  []PostResult
	Duration time.Duration
}

// PostResult is what happened to one claimed post.
type PostResult struct {
	PostID uuid.UUID
	Status enums.PostStatus
	// Conflict is set when the post left the scheduled state before the
	// terminal write, so nothing was recorded.
	Conflict bool
	// Skipped is set when the claim lapsed and the post was not dispatched.
	Skipped bool
}

// RunOnce runs a single tick. Work is detached from ctx cancellation so a
// stop request never interrupts a publish in progress. The returned error
// combines the post-level failures; other posts are still processed.
func (s *Service) RunOnce(ctx context.Context) (TickReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	report := TickReport{TickID: uuid.NewString()}
	ctx = s.logg.WithTick(context.WithoutCancel(ctx), report.TickID)
	started := s.now()
	wall := time.Now()

	due, err := s.posts.ClaimDue(ctx, started, posts.ClaimOptions{
		Owner: s.claimOwner(),
		Lease: s.lease,
		Limit: s.batchSize,
	})
	if err != nil {
		s.metrics.IncLoopFailure("fetch")
		report.Duration = time.Since(wall)
		return report, fmt.Errorf("fetch due posts: %w", err)
	}
	report.Due = len(due)
	s.markTick(started)
	if len(due) == 0 {
		report.Duration = time.Since(wall)
		s.metrics.ObserveTick(report.Duration, 0)
		s.logg.Debug(ctx, "no posts due")
		return report, nil
	}

	s.logg.Info(s.logg.WithField(ctx, "due_count", len(due)), "tick start")
	var errs error
	for _, post := range due {
		result, err := s.processPost(ctx, post)
		report.Results = append(report.Results, result)
		errs = multierr.Append(errs, err)
	}

	elapsed := time.Since(wall)
	report.Duration = elapsed
	s.metrics.ObserveTick(elapsed, len(due))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"due_count":   len(due),
		"duration_ms": elapsed.Milliseconds(),
		"failures":    len(multierr.Errors(errs)),
	}), "tick complete")
	return report, errs
}

// processPost runs the gate, dispatch, aggregation and terminal write for one
// post. Panics stop at this boundary.
func (s *Service) processPost(ctx context.Context, post models.Post) (result PostResult, err error) {
	result.PostID = post.ID
	ctx = s.logg.WithPostID(ctx, post.ID.String())
	ctx = s.logg.WithUserID(ctx, post.UserID.String())
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post %s: panic: %v", post.ID, r)
			s.metrics.IncLoopFailure("post")
			s.logg.Error(ctx, "post pipeline panicked", err)
		}
	}()

	owner := s.claimOwner()
	if owner != "" {
		if err := s.posts.RenewClaim(ctx, post.ID, owner, s.now().Add(s.lease)); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				result.Skipped = true
				s.logg.Warn(ctx, "claim lease lost before dispatch; post skipped")
				return result, nil
			}
			s.metrics.IncLoopFailure("claim")
			s.logg.Error(ctx, "failed to renew claim lease", err)
			return result, fmt.Errorf("renew claim on post %s: %w", post.ID, err)
		}
	}

	outcome := s.evaluate(ctx, post)
	result.Status = outcome.Status

	if err := s.posts.MarkTerminal(ctx, post.ID, owner, outcome); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			result.Conflict = true
			s.logg.Warn(ctx, "post left scheduled state during the tick; outcome dropped")
			return result, nil
		}
		s.metrics.IncLoopFailure("persist")
		s.logg.Error(ctx, "failed to record post outcome", err)
		return result, fmt.Errorf("mark post %s terminal: %w", post.ID, err)
	}
	s.metrics.IncPostProcessed(string(outcome.Status))
	s.syncCalendar(ctx, post.ID, outcome.Status)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status":    outcome.Status,
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
	}), "post publish complete")
	return result, nil
}

func (s *Service) evaluate(ctx context.Context, post models.Post) types.AggregatedOutcome {
	if len(post.Platforms) == 0 {
		return publishing.NoPlatforms(s.now())
	}

	decision, err := s.oracle.CanAutoPost(ctx, post.UserID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "permission check failed; treating as denied")
		decision = permissions.Decision{Reason: ReasonPermissionUnavailable}
	}
	if !decision.Allowed {
		reason := decision.Reason
		if reason == "" {
			reason = reasonPermissionDenied
		}
		return publishing.Denied(reason, post.Platforms, s.now())
	}

	outcomes := s.dispatcher.Dispatch(ctx, post)
	return publishing.Aggregate(outcomes, s.now())
}

// syncCalendar pushes status to the calendar projection. Failures are logged
// only; the post row is the source of truth.
func (s *Service) syncCalendar(ctx context.Context, postID uuid.UUID, status enums.PostStatus) {
	if s.calendar == nil {
		return
	}
	err := s.calendar.SyncStatus(ctx, postID, status)
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Debug(ctx, "post has no calendar event")
	default:
		s.metrics.IncLoopFailure("calendar")
		s.logg.Error(ctx, "calendar sync failed", err)
	}
}

// claimOwner is the lease owner stamped on claimed posts, or "" when claims
// carry no lease.
func (s *Service) claimOwner() string {
	if s.lease <= 0 {
		return ""
	}
	return s.workerID
}

func (s *Service) markTick(at time.Time) {
	s.mu.Lock()
	s.lastTick = &at
	s.mu.Unlock()
}
