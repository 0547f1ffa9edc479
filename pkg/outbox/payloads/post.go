package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// PostPublishCompletedEvent is emitted when a scheduled post reaches a
// terminal status.
type PostPublishCompletedEvent struct {
	PostID      uuid.UUID        `json:"post_id"`
	UserID      uuid.UUID        `json:"user_id"`
	Status      enums.PostStatus `json:"status"`
	Succeeded   []enums.Platform `json:"succeeded"`
	Failed      []enums.Platform `json:"failed"`
	Error       string           `json:"error,omitempty"`
	AttemptedAt time.Time        `json:"attempted_at"`
}
