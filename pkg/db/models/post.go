package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbtypes "github.com/postpilot/postpilot-backend/pkg/db/types"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// Post is a user-authored content item targeted at one or more platforms.
type Post struct {
	ID                uuid.UUID                                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID                                    `gorm:"column:user_id;type:uuid;not null;index"`
	Caption           string                                       `gorm:"column:caption;not null;default:''"`
	ImageURL          *string                                      `gorm:"column:image_url"`
	Subreddit         *string                                      `gorm:"column:subreddit"`
	Platforms         dbtypes.PlatformList                         `gorm:"column:platforms;type:text[];not null"`
	Status            enums.PostStatus                             `gorm:"column:status;type:post_status;not null;default:'draft'"`
	ScheduledAt       *time.Time                                   `gorm:"column:scheduled_at"`
	PostedAt          *time.Time                                   `gorm:"column:posted_at"`
	LastAttemptedAt   *time.Time                                   `gorm:"column:last_attempted_at"`
	EngagementMetrics *datatypes.JSONType[types.AggregatedOutcome] `gorm:"column:engagement_metrics;type:jsonb"`
	ClaimedBy         *string                                      `gorm:"column:claimed_by"`
	ClaimExpiresAt    *time.Time                                   `gorm:"column:claim_expires_at"`
	CreatedAt         time.Time                                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                                    `gorm:"column:updated_at;autoUpdateTime"`
}

// LastOutcome returns the most recent aggregated outcome, if one was recorded.
func (p Post) LastOutcome() (types.AggregatedOutcome, bool) {
	if p.EngagementMetrics == nil {
		return types.AggregatedOutcome{}, false
	}
	return p.EngagementMetrics.Data(), true
}

// BeforeSave stores timestamps in UTC. sqlite keeps the writer's offset in
// the text value.
func (p *Post) BeforeSave(*gorm.DB) error {
	for _, ts := range []**time.Time{&p.ScheduledAt, &p.PostedAt, &p.LastAttemptedAt, &p.ClaimExpiresAt} {
		if *ts != nil {
			utc := (*ts).UTC()
			*ts = &utc
		}
	}
	return nil
}
