package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// UserPlan is the billing plan snapshot consulted by the auto-post gate.
type UserPlan struct {
	UserID           uuid.UUID        `gorm:"column:user_id;type:uuid;primaryKey"`
	Tier             enums.PlanTier   `gorm:"column:tier;not null;default:'free'"`
	Status           enums.PlanStatus `gorm:"column:status;not null;default:'active'"`
	CurrentPeriodEnd *time.Time       `gorm:"column:current_period_end"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
