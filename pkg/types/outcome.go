package types

import (
	"strings"
	"time"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// PublishSuccess carries what the platform returned for an accepted post.
type PublishSuccess struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url,omitempty"`
}

// PublishFailure carries why a platform did not accept a post.
type PublishFailure struct {
	Kind    enums.FailureKind `json:"kind"`
	Message string            `json:"message"`
}

// PlatformOutcome is the result of one (post, platform) publish attempt.
// Exactly one of Result or Failure is set; Success mirrors which one.
type PlatformOutcome struct {
	Platform enums.Platform  `json:"platform"`
	Success  bool            `json:"success"`
	Result   *PublishSuccess `json:"result,omitempty"`
	Failure  *PublishFailure `json:"failure,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(platform enums.Platform, externalID, url string) PlatformOutcome {
	return PlatformOutcome{
		Platform: platform,
		Success:  true,
		Result:   &PublishSuccess{ExternalID: externalID, URL: url},
	}
}

// Failed builds a failed outcome.
func Failed(platform enums.Platform, kind enums.FailureKind, message string) PlatformOutcome {
	return PlatformOutcome{
		Platform: platform,
		Failure:  &PublishFailure{Kind: kind, Message: message},
	}
}

// ExternalID returns the platform post id, or "" for failures.
func (o PlatformOutcome) ExternalID() string {
	if o.Result == nil {
		return ""
	}
	return o.Result.ExternalID
}

// URL returns the platform post url, or "" for failures.
func (o PlatformOutcome) URL() string {
	if o.Result == nil {
		return ""
	}
	return o.Result.URL
}

// Error returns the failure message, or "" for successes.
func (o PlatformOutcome) Error() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Message
}

// Kind returns the failure kind, or "" for successes.
func (o PlatformOutcome) Kind() enums.FailureKind {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Kind
}

// AggregatedOutcome is the record persisted to posts.engagement_metrics after
// a publish attempt and appended to publish_attempts.
type AggregatedOutcome struct {
	Status      enums.PostStatus  `json:"status"`
	AttemptedAt time.Time         `json:"attempted_at"`
	Outcomes    []PlatformOutcome `json:"outcomes"`
	Succeeded   []enums.Platform  `json:"succeeded"`
	Failed      []enums.Platform  `json:"failed"`
	Error       string            `json:"error,omitempty"`
}

// Outcome returns the outcome recorded for platform, if any.
func (a AggregatedOutcome) Outcome(platform enums.Platform) (PlatformOutcome, bool) {
	for _, outcome := range a.Outcomes {
		if outcome.Platform == platform {
			return outcome, true
		}
	}
	return PlatformOutcome{}, false
}

// FailureSummary joins the per-platform failures as "platform: message" pairs.
func (a AggregatedOutcome) FailureSummary() string {
	parts := make([]string, 0, len(a.Failed))
	for _, outcome := range a.Outcomes {
		if outcome.Success {
			continue
		}
		parts = append(parts, string(outcome.Platform)+": "+outcome.Error())
	}
	return strings.Join(parts, "; ")
}
