package publishing

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/metrics"
	"github.com/postpilot/postpilot-backend/pkg/types"
	"github.com/postpilot/postpilot-backend/pkg/validation"
)

// DispatcherParams configure a Dispatcher.
type DispatcherParams struct {
	Registry    *Registry
	Logger      *logger.Logger
	Metrics     *metrics.SchedulerMetrics
	Concurrency int
}

// Dispatcher publishes one post to each of its requested platforms.
type Dispatcher struct {
	registry    *Registry
	logg        *logger.Logger
	metrics     *metrics.SchedulerMetrics
	concurrency int
	validate    *validator.Validate
}

// NewDispatcher builds a dispatcher. Concurrency <= 1 publishes platforms one
// after another.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Registry == nil {
		return nil, errors.New("publisher registry required")
	}
	concurrency := params.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		registry:    params.Registry,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: concurrency,
		validate:    validation.New(),
	}, nil
}

// Dispatch returns one outcome per requested platform, in the order the
// platforms were requested. A platform failure never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, post models.Post) []types.PlatformOutcome {
	platforms := post.Platforms
	outcomes := make([]types.PlatformOutcome, len(platforms))
	if len(platforms) == 0 {
		return outcomes
	}

	if d.concurrency == 1 || len(platforms) == 1 {
		for i, platform := range platforms {
			outcomes[i] = d.publishOne(ctx, post, platform)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, platform := range platforms {
		g.Go(func() error {
			outcomes[i] = d.publishOne(ctx, post, platform)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) publishOne(ctx context.Context, post models.Post, requested enums.Platform) (outcome types.PlatformOutcome) {
	name := enums.NormalizePlatform(string(requested))
	if d.logg != nil {
		ctx = d.logg.WithPlatform(ctx, string(name))
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = types.Failed(name, enums.FailureInternal, fmt.Sprintf("publisher panic: %v", r))
			if d.logg != nil {
				d.logg.Error(ctx, "publisher panicked", fmt.Errorf("%v", r))
			}
		}
		d.record(outcome)
	}()

	publisher, ok := d.registry.Resolve(string(name))
	if !ok {
		return types.Failed(name, enums.FailureUnsupportedPlatform, fmt.Sprintf("platform %q is not supported", string(requested)))
	}

	req := RequestFor(post, name)
	if err := d.validate.Struct(req); err != nil {
		return types.Failed(name, enums.FailureInvalidContent, validationSummary(err))
	}
	if missing := publisher.Capabilities().Missing(req.Required()); missing != 0 {
		return types.Failed(name, enums.FailureUnsupportedContent, fmt.Sprintf("%s does not support %s posts", name, missing))
	}

	outcome = publisher.Publish(ctx, req)
	outcome.Platform = name
	if !outcome.Success && outcome.Failure == nil {
		outcome = types.Failed(name, enums.FailureInternal, "publisher returned no result")
	}
	return outcome
}

func (d *Dispatcher) record(outcome types.PlatformOutcome) {
	result := "success"
	if !outcome.Success {
		result = string(outcome.Kind())
	}
	d.metrics.IncPlatformResult(string(outcome.Platform), result)
}
