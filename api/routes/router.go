package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postpilot/postpilot-backend/api/controllers"
	"github.com/postpilot/postpilot-backend/api/middleware"
	pkgAuth "github.com/postpilot/postpilot-backend/pkg/auth"
	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/logger"
)

// Deps holds what the router needs beyond configuration. Nil pingers are
// reported as disabled by the readiness probe; the other optional operator
// routes are only mounted when their dependency is set.
type Deps struct {
	DB              controllers.Pinger
	Redis           controllers.Pinger
	Scheduler       controllers.SchedulerControl
	Posts           controllers.PostHistory
	Calendar        controllers.CalendarLookup
	PermissionCache controllers.PermissionCache
	Publishers      controllers.PublisherHealth
	Gatherer        prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/admin/v1/scheduler", func(r chi.Router) {
		r.Use(middleware.OperatorAuth(cfg.Ops, pkgAuth.ScopeScheduler, logg))
		r.Get("/status", controllers.SchedulerStatus(deps.Scheduler, logg))
		r.Post("/start", controllers.SchedulerStart(deps.Scheduler, logg))
		r.Post("/stop", controllers.SchedulerStop(deps.Scheduler, logg))
		r.Post("/tick", controllers.SchedulerTick(deps.Scheduler, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OperatorAuth(cfg.Ops, pkgAuth.ScopeScheduler, logg))
		if deps.Posts != nil {
			r.Get("/api/admin/v1/posts/{postId}/attempts", controllers.PostAttempts(deps.Posts, deps.Calendar, logg))
		}
		if deps.PermissionCache != nil {
			r.Delete("/api/admin/v1/permissions/{userId}/cache", controllers.PermissionCacheInvalidate(deps.PermissionCache, logg))
		}
		if deps.Publishers != nil {
			r.Get("/api/admin/v1/publishers", controllers.PublishersHealth(deps.Publishers))
		}
	})

	return r
}
