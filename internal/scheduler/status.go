package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// Status is the operator view of the scheduler. Counts come from storage.
type Status struct {
	Running             bool         `json:"running"`
	PollIntervalSeconds float64      `json:"poll_interval_seconds"`
	WorkerID            string       `json:"worker_id"`
	LastTickAt          *time.Time   `json:"last_tick_at,omitempty"`
	ScheduledCount      int64        `json:"scheduled_count"`
	RecentPublished     []RecentPost `json:"recent_published"`
}

// RecentPost is a delivered post in the status summary.
type RecentPost struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Status    enums.PostStatus `json:"status"`
	Platforms []string         `json:"platforms"`
	PostedAt  *time.Time       `json:"posted_at,omitempty"`
}

// Status reports the run state plus a storage-backed summary.
func (s *Service) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	status := Status{
		Running:             s.running,
		PollIntervalSeconds: s.interval.Seconds(),
		WorkerID:            s.workerID,
		LastTickAt:          s.lastTick,
		RecentPublished:     []RecentPost{},
	}
	s.mu.Unlock()

	count, err := s.posts.CountScheduled(ctx)
	if err != nil {
		return status, fmt.Errorf("count scheduled posts: %w", err)
	}
	status.ScheduledCount = count

	recent, err := s.posts.RecentPublished(ctx, s.recentLimit)
	if err != nil {
		return status, fmt.Errorf("load recent posts: %w", err)
	}
	for _, post := range recent {
		status.RecentPublished = append(status.RecentPublished, RecentPost{
			ID:        post.ID,
			UserID:    post.UserID,
			Status:    post.Status,
			Platforms: post.Platforms.Strings(),
			PostedAt:  post.PostedAt,
		})
	}
	return status, nil
}
