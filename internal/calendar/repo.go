package calendar

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postpilot/postpilot-backend/internal/repo"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
)

// Repository keeps calendar_events in step with post status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	SyncStatus(ctx context.Context, postID uuid.UUID, status enums.PostStatus) error
	FindByPost(ctx context.Context, postID uuid.UUID) (*models.CalendarEvent, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns a calendar repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: repo.NewBase(tx)}
}

// SyncStatus copies status onto the post's calendar event. A post without an
// event yields NOT_FOUND.
func (r *repositoryImpl) SyncStatus(ctx context.Context, postID uuid.UUID, status enums.PostStatus) error {
	if !status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}
	res := r.base.DB(ctx).Model(&models.CalendarEvent{}).
		Where("post_id = ?", postID).
		Update("status", status)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update calendar event")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "calendar event not found")
	}
	return nil
}

func (r *repositoryImpl) FindByPost(ctx context.Context, postID uuid.UUID) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := r.base.DB(ctx).Where("post_id = ?", postID).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "calendar event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load calendar event")
	}
	return &event, nil
}
