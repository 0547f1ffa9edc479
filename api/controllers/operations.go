package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/api/middleware"
	"github.com/postpilot/postpilot-backend/api/responses"
	"github.com/postpilot/postpilot-backend/internal/publishing"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// PostHistory reads a post and its attempt log.
type PostHistory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListAttempts(ctx context.Context, postID uuid.UUID) ([]models.PublishAttempt, error)
}

// CalendarLookup finds the calendar projection of a post.
type CalendarLookup interface {
	FindByPost(ctx context.Context, postID uuid.UUID) (*models.CalendarEvent, error)
}

// PermissionCache drops cached auto-post decisions.
type PermissionCache interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// PublisherHealth reports per-platform publisher state.
type PublisherHealth interface {
	Health() []publishing.PublisherHealth
}

type attemptView struct {
	Status      string                  `json:"status"`
	AttemptedAt time.Time               `json:"attempted_at"`
	Outcome     types.AggregatedOutcome `json:"outcome"`
}

type postAttemptsResponse struct {
	PostID         string        `json:"post_id"`
	Status         string        `json:"status"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
	CalendarStatus string        `json:"calendar_status,omitempty"`
	Attempts       []attemptView `json:"attempts"`
}

func pathUUID(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", label)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// PostAttempts returns a post's status, its calendar status when an event
// exists, and its attempt history oldest first.
func PostAttempts(store PostHistory, calendar CalendarLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID, err := pathUUID(r, "postId", "post id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		post, err := store.Get(r.Context(), postID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempts, err := store.ListAttempts(r.Context(), postID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load publish attempts"))
			return
		}

		resp := postAttemptsResponse{
			PostID:      post.ID.String(),
			Status:      string(post.Status),
			ScheduledAt: post.ScheduledAt,
			Attempts:    make([]attemptView, 0, len(attempts)),
		}
		if calendar != nil {
			event, err := calendar.FindByPost(r.Context(), postID)
			switch {
			case err == nil:
				resp.CalendarStatus = string(event.Status)
			case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load calendar event"))
				return
			}
		}
		for _, a := range attempts {
			resp.Attempts = append(resp.Attempts, attemptView{
				Status:      string(a.Status),
				AttemptedAt: a.AttemptedAt,
				Outcome:     a.Outcome.Data(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// PermissionCacheInvalidate forgets the cached decision for one user so the
// next tick reads their plan fresh.
func PermissionCacheInvalidate(cache PermissionCache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUUID(r, "userId", "user id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := cache.Invalidate(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate permission cache"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event":   "permissions.cache_invalidated",
				"user_id": userID.String(),
				"by":      middleware.OperatorFromContext(r.Context()),
			}), "permission cache invalidated")
		}
		responses.WriteSuccess(w, map[string]string{"user_id": userID.String()})
	}
}

func PublishersHealth(src PublisherHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{"publishers": src.Health()})
	}
}
