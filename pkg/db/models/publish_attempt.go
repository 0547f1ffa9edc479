package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// PublishAttempt is an append-only record of one terminal publish attempt.
type PublishAttempt struct {
	ID          uuid.UUID                                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PostID      uuid.UUID                                   `gorm:"column:post_id;type:uuid;not null;index"`
	Status      enums.PostStatus                            `gorm:"column:status;type:post_status;not null"`
	Outcome     datatypes.JSONType[types.AggregatedOutcome] `gorm:"column:outcome;type:jsonb;not null"`
	AttemptedAt time.Time                                   `gorm:"column:attempted_at;not null"`
}
