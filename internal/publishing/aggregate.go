package publishing

import (
	"time"

	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// ReasonNoPlatforms is recorded when a post targets no platforms.
const ReasonNoPlatforms = "no platforms specified"

// Aggregate reduces per-platform outcomes to a terminal status: all succeeded
// is published, some is partially_published, none (or no outcomes) is failed.
func Aggregate(outcomes []types.PlatformOutcome, at time.Time) types.AggregatedOutcome {
	if len(outcomes) == 0 {
		return NoPlatforms(at)
	}

	agg := types.AggregatedOutcome{
		AttemptedAt: at.UTC(),
		Outcomes:    append([]types.PlatformOutcome(nil), outcomes...),
		Succeeded:   []enums.Platform{},
		Failed:      []enums.Platform{},
	}
	for _, outcome := range outcomes {
		if outcome.Success {
			agg.Succeeded = append(agg.Succeeded, outcome.Platform)
		} else {
			agg.Failed = append(agg.Failed, outcome.Platform)
		}
	}

	switch {
	case len(agg.Failed) == 0:
		agg.Status = enums.PostStatusPublished
	case len(agg.Succeeded) == 0:
		agg.Status = enums.PostStatusFailed
		agg.Error = agg.FailureSummary()
	default:
		agg.Status = enums.PostStatusPartiallyPublished
	}
	return agg
}

// NoPlatforms is the outcome for a post with an empty platform list.
func NoPlatforms(at time.Time) types.AggregatedOutcome {
	return gateFailure(ReasonNoPlatforms, at)
}

// Denied is the outcome for a post whose owner may not auto-post. Every
// requested platform is recorded as permission_denied without being called.
func Denied(reason string, platforms []enums.Platform, at time.Time) types.AggregatedOutcome {
	agg := gateFailure(reason, at)
	for _, requested := range platforms {
		name := enums.NormalizePlatform(string(requested))
		agg.Outcomes = append(agg.Outcomes, types.Failed(name, enums.FailurePermissionDenied, reason))
		agg.Failed = append(agg.Failed, name)
	}
	return agg
}

func gateFailure(reason string, at time.Time) types.AggregatedOutcome {
	return types.AggregatedOutcome{
		Status:      enums.PostStatusFailed,
		AttemptedAt: at.UTC(),
		Outcomes:    []types.PlatformOutcome{},
		Succeeded:   []enums.Platform{},
		Failed:      []enums.Platform{},
		Error:       reason,
	}
}
