package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// CalendarEvent is the calendar projection of a scheduled or published post.
type CalendarEvent struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PostID    uuid.UUID        `gorm:"column:post_id;type:uuid;not null;uniqueIndex"`
	UserID    uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Title     string           `gorm:"column:title;not null;default:''"`
	Status    enums.PostStatus `gorm:"column:status;type:post_status;not null"`
	StartsAt  time.Time        `gorm:"column:starts_at;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
