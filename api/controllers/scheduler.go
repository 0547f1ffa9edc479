package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/postpilot/postpilot-backend/api/middleware"
	"github.com/postpilot/postpilot-backend/api/responses"
	"github.com/postpilot/postpilot-backend/api/validators"
	"github.com/postpilot/postpilot-backend/internal/scheduler"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/logger"
)

const defaultStopTimeout = 30 * time.Second

// SchedulerControl is the operator surface of the publish scheduler.
type SchedulerControl interface {
	Start(ctx context.Context) bool
	Stop(ctx context.Context) bool
	Status(ctx context.Context) (scheduler.Status, error)
	RunOnce(ctx context.Context) (scheduler.TickReport, error)
}

type stopRequest struct {
	TimeoutSeconds int `json:"timeout_seconds" validate:"omitempty,min=1,max=300"`
}

type toggleResponse struct {
	Changed bool `json:"changed"`
	Running bool `json:"running"`
}

type tickResponse struct {
	TickID     string           `json:"tick_id"`
	Due        int              `json:"due"`
	DurationMS int64            `json:"duration_ms"`
	Results    []tickPostResult `json:"results"`
	Errors     []string         `json:"errors,omitempty"`
}

type tickPostResult struct {
	PostID   string `json:"post_id"`
	Status   string `json:"status,omitempty"`
	Conflict bool   `json:"conflict,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

func SchedulerStatus(svc SchedulerControl, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load scheduler status"))
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// SchedulerStart starts the loop. Starting a running scheduler is a no-op
// reported with changed=false.
func SchedulerStart(svc SchedulerControl, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := svc.Start(r.Context())
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event":   "scheduler.start_requested",
				"changed": changed,
				"by":      middleware.OperatorFromContext(r.Context()),
			}), "scheduler start requested")
		}
		responses.WriteSuccess(w, toggleResponse{Changed: changed, Running: true})
	}
}

// SchedulerStop stops the loop and waits up to timeout_seconds for the
// in-flight tick.
func SchedulerStop(svc SchedulerControl, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stopRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		timeout := defaultStopTimeout
		if req.TimeoutSeconds > 0 {
			timeout = time.Duration(req.TimeoutSeconds) * time.Second
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		changed := svc.Stop(ctx)
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event":   "scheduler.stop_requested",
				"changed": changed,
				"by":      middleware.OperatorFromContext(r.Context()),
			}), "scheduler stop requested")
		}
		responses.WriteSuccess(w, toggleResponse{Changed: changed, Running: false})
	}
}

// SchedulerTick runs one tick synchronously. Post-level failures are reported
// in the body; only a failed fetch fails the request.
func SchedulerTick(svc SchedulerControl, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.RunOnce(r.Context())
		resp := tickResponse{
			TickID:     report.TickID,
			Due:        report.Due,
			DurationMS: report.Duration.Milliseconds(),
			Results:    make([]tickPostResult, 0, len(report.Results)),
		}
		for _, res := range report.Results {
			resp.Results = append(resp.Results, tickPostResult{
				PostID:   res.PostID.String(),
				Status:   string(res.Status),
				Conflict: res.Conflict,
				Skipped:  res.Skipped,
			})
		}
		if err != nil {
			if len(report.Results) == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "run scheduler tick"))
				return
			}
			for _, e := range multierr.Errors(err) {
				resp.Errors = append(resp.Errors, e.Error())
			}
		}
		responses.WriteSuccess(w, resp)
	}
}
