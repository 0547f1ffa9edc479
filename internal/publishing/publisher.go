// Package publishing fans a post out to per-platform publishers and reduces
// the results into one terminal status.
package publishing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// CapabilitySet is a bitset of what a publisher can post.
type CapabilitySet uint8

const (
	CapabilityText CapabilitySet = 1 << iota
	CapabilityImage
	CapabilitySchedule
)

// Has reports whether every capability in want is present.
func (c CapabilitySet) Has(want CapabilitySet) bool {
	return c&want == want
}

// Missing returns the capabilities in want that c lacks.
func (c CapabilitySet) Missing(want CapabilitySet) CapabilitySet {
	return want &^ c
}

func (c CapabilitySet) String() string {
	names := make([]string, 0, 3)
	if c&CapabilityText != 0 {
		names = append(names, "text")
	}
	if c&CapabilityImage != 0 {
		names = append(names, "image")
	}
	if c&CapabilitySchedule != 0 {
		names = append(names, "schedule")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Request is the normalized publish input handed to a Publisher. ImageURL is
// an opaque image reference (a URL or a storage key) passed through as-is.
// PublishAt asks the platform to hold the post until that time; it is unset
// for due posts, which publish immediately.
type Request struct {
	PostID    uuid.UUID      `json:"post_id" validate:"required"`
	UserID    uuid.UUID      `json:"user_id" validate:"required"`
	Platform  enums.Platform `json:"platform" validate:"required"`
	Caption   string         `json:"caption" validate:"max=65000"`
	ImageURL  string         `json:"image_url,omitempty" validate:"omitempty,max=2048"`
	Subreddit string         `json:"subreddit,omitempty" validate:"omitempty,max=50"`
	PublishAt *time.Time     `json:"publish_at,omitempty"`
}

// RequestFor builds the request for one platform of post.
func RequestFor(post models.Post, platform enums.Platform) Request {
	req := Request{
		PostID:   post.ID,
		UserID:   post.UserID,
		Platform: platform,
		Caption:  strings.TrimSpace(post.Caption),
	}
	if post.ImageURL != nil {
		req.ImageURL = strings.TrimSpace(*post.ImageURL)
	}
	if post.Subreddit != nil {
		req.Subreddit = strings.TrimPrefix(strings.TrimSpace(*post.Subreddit), "r/")
	}
	return req
}

// Required returns the capabilities needed to publish the request.
func (r Request) Required() CapabilitySet {
	var want CapabilitySet
	if r.Caption != "" {
		want |= CapabilityText
	}
	if r.ImageURL != "" {
		want |= CapabilityImage
	}
	if r.PublishAt != nil {
		want |= CapabilitySchedule
	}
	return want
}

// Publisher posts content to one platform. Expected failures (missing
// credentials, rejected tokens, rate limits) come back as failed outcomes,
// never as panics.
type Publisher interface {
	Platform() enums.Platform
	Capabilities() CapabilitySet
	Publish(ctx context.Context, req Request) types.PlatformOutcome
}
