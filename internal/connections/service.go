package connections

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postpilot/postpilot-backend/internal/repo"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/security"
)

// Credential is a usable access token for one (user, platform) pair.
type Credential struct {
	UserID      uuid.UUID
	Platform    enums.Platform
	AccountName string
	AccessToken string
	ExpiresAt   *time.Time
}

type tokenOpener interface {
	Open(value string) (string, error)
}

// Service resolves stored platform connections into credentials.
type Service struct {
	base   repo.Base
	cipher tokenOpener
	now    func() time.Time
}

// NewService reads platform_connections through db. cipher may be nil when
// tokens are stored unsealed.
func NewService(db *gorm.DB, cipher *security.TokenCipher) *Service {
	svc := &Service{base: repo.NewBase(db), now: time.Now}
	if cipher != nil {
		svc.cipher = cipher
	}
	return svc
}

// Credential returns the user's token for platform. Missing or revoked
// connections are NOT_CONNECTED; an expired token is AUTH_EXPIRED.
func (s *Service) Credential(ctx context.Context, userID uuid.UUID, platform enums.Platform) (Credential, error) {
	var conn models.PlatformConnection
	err := s.base.DB(ctx).
		Where("user_id = ? AND platform = ?", userID, enums.NormalizePlatform(string(platform))).
		Take(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credential{}, pkgerrors.Newf(pkgerrors.CodeNotConnected, "%s account not connected", platform)
	}
	if err != nil {
		return Credential{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load platform connection")
	}
	if conn.Status != enums.ConnectionStatusActive {
		return Credential{}, pkgerrors.Newf(pkgerrors.CodeNotConnected, "%s connection was revoked", platform)
	}
	if conn.TokenExpiresAt != nil && !s.now().Before(*conn.TokenExpiresAt) {
		return Credential{}, pkgerrors.Newf(pkgerrors.CodeAuthExpired, "%s token expired, reconnect the account", platform)
	}

	token := conn.AccessTokenEnc
	if s.cipher != nil {
		token, err = s.cipher.Open(conn.AccessTokenEnc)
		if err != nil {
			return Credential{}, pkgerrors.Wrap(pkgerrors.CodeAuthExpired, err, "stored token unreadable, reconnect the account")
		}
	}
	return Credential{
		UserID:      conn.UserID,
		Platform:    conn.Platform,
		AccountName: conn.AccountName,
		AccessToken: token,
		ExpiresAt:   conn.TokenExpiresAt,
	}, nil
}
