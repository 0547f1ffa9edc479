package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// PlatformConnection stores a user's OAuth credentials for one platform.
// AccessTokenEnc is sealed with security.TokenCipher.
type PlatformConnection struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Platform       enums.Platform         `gorm:"column:platform;not null"`
	AccountName    string                 `gorm:"column:account_name;not null;default:''"`
	AccessTokenEnc string                 `gorm:"column:access_token_enc;not null"`
	TokenExpiresAt *time.Time             `gorm:"column:token_expires_at"`
	Status         enums.ConnectionStatus `gorm:"column:status;not null;default:'active'"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
