package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/postpilot/postpilot-backend/internal/repo"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/outbox"
	"github.com/postpilot/postpilot-backend/pkg/outbox/payloads"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

// Repository is the due-post source and terminal status writer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ClaimDue(ctx context.Context, now time.Time, opts ClaimOptions) ([]models.Post, error)
	RenewClaim(ctx context.Context, postID uuid.UUID, owner string, until time.Time) error
	MarkTerminal(ctx context.Context, postID uuid.UUID, owner string, outcome types.AggregatedOutcome) error
	CountScheduled(ctx context.Context) (int64, error)
	RecentPublished(ctx context.Context, limit int) ([]models.Post, error)
	ListAttempts(ctx context.Context, postID uuid.UUID) ([]models.PublishAttempt, error)
}

// ClaimOptions bounds a claiming read. An empty Owner or zero Lease reads
// without stamping a lease.
type ClaimOptions struct {
	Owner string
	Lease time.Duration
	Limit int
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type repositoryImpl struct {
	base    repo.Base
	emitter eventEmitter
	actor   *outbox.ActorRef
}

// NewRepository returns a posts repository bound to db. emitter may be nil,
// in which case no outbox events are written.
func NewRepository(db *gorm.DB, emitter eventEmitter, actor *outbox.ActorRef) Repository {
	return &repositoryImpl{base: repo.NewBase(db), emitter: emitter, actor: actor}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: repo.NewBase(tx), emitter: r.emitter, actor: r.actor}
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := r.base.DB(ctx).Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "post not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load post")
	}
	return &post, nil
}

// ClaimDue returns scheduled posts with scheduled_at <= now, earliest first,
// and stamps a claim lease on them in the same transaction. On postgres the
// read is FOR UPDATE SKIP LOCKED so concurrent workers never share a post;
// the lease stamp is conditional so a racing sqlite writer cannot steal one.
func (r *repositoryImpl) ClaimDue(ctx context.Context, now time.Time, opts ClaimOptions) ([]models.Post, error) {
	now = now.UTC()
	var due []models.Post
	err := r.base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		txBase := repo.NewBase(tx)
		query := tx.Model(&models.Post{}).
			Where("status = ?", enums.PostStatusScheduled).
			Where("scheduled_at IS NOT NULL AND "+txBase.TimeAtOrBefore("scheduled_at"), now).
			Where("(claim_expires_at IS NULL OR "+txBase.TimeAtOrBefore("claim_expires_at")+")", now).
			Order(txBase.TimeOrder("scheduled_at")).
			Order("id ASC")
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if err := txBase.LockSkipLocked(query).Find(&due).Error; err != nil {
			return fmt.Errorf("select due posts: %w", err)
		}
		if len(due) == 0 || opts.Owner == "" || opts.Lease <= 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(due))
		for _, post := range due {
			ids = append(ids, post.ID)
		}
		expires := now.Add(opts.Lease)
		if err := tx.Model(&models.Post{}).
			Where("id IN ?", ids).
			Where("status = ?", enums.PostStatusScheduled).
			Where("(claim_expires_at IS NULL OR "+txBase.TimeAtOrBefore("claim_expires_at")+")", now).
			Updates(map[string]any{
				"claimed_by":       opts.Owner,
				"claim_expires_at": expires,
			}).Error; err != nil {
			return fmt.Errorf("stamp claim lease: %w", err)
		}
		if txBase.IsPostgres() {
			for i := range due {
				due[i].ClaimedBy = &opts.Owner
				due[i].ClaimExpiresAt = &expires
			}
			return nil
		}

		var owned []uuid.UUID
		if err := tx.Model(&models.Post{}).
			Where("id IN ? AND claimed_by = ?", ids, opts.Owner).
			Pluck("id", &owned).Error; err != nil {
			return fmt.Errorf("confirm claim lease: %w", err)
		}
		mine := make(map[uuid.UUID]bool, len(owned))
		for _, id := range owned {
			mine[id] = true
		}
		claimed := due[:0]
		for _, post := range due {
			if !mine[post.ID] {
				continue
			}
			post.ClaimedBy = &opts.Owner
			post.ClaimExpiresAt = &expires
			claimed = append(claimed, post)
		}
		due = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// RenewClaim extends owner's lease on a post that is still scheduled. A lease
// that lapsed and was taken by another worker, or a post that left the
// scheduled state, yields STATE_CONFLICT.
func (r *repositoryImpl) RenewClaim(ctx context.Context, postID uuid.UUID, owner string, until time.Time) error {
	if owner == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "claim owner required")
	}
	res := r.base.DB(ctx).Model(&models.Post{}).
		Where("id = ? AND claimed_by = ? AND status = ?", postID, owner, enums.PostStatusScheduled).
		Update("claim_expires_at", until.UTC())
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "renew claim lease")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "post claim was lost")
	}
	return nil
}

// MarkTerminal writes the aggregated outcome as one unit: the post row, a
// publish_attempts entry and a post_publish_completed outbox event. The post
// update only applies while the post is still scheduled and, when owner is
// set, still claimed by owner; otherwise the write is dropped with
// STATE_CONFLICT.
func (r *repositoryImpl) MarkTerminal(ctx context.Context, postID uuid.UUID, owner string, outcome types.AggregatedOutcome) error {
	if !outcome.Status.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "status %q is not terminal", outcome.Status)
	}
	at := outcome.AttemptedAt.UTC()
	if outcome.AttemptedAt.IsZero() {
		at = time.Now().UTC()
		outcome.AttemptedAt = at
	}

	return r.base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":             outcome.Status,
			"last_attempted_at":  at,
			"engagement_metrics": datatypes.NewJSONType(outcome),
			"claimed_by":         nil,
			"claim_expires_at":   nil,
		}
		if outcome.Status.Delivered() {
			updates["posted_at"] = at
		}

		query := tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", postID, enums.PostStatusScheduled)
		if owner != "" {
			query = query.Where("claimed_by = ?", owner)
		}
		res := query.Updates(updates)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update post status")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "post is no longer scheduled or claimed by this worker")
		}

		attempt := models.PublishAttempt{
			ID:          uuid.New(),
			PostID:      postID,
			Status:      outcome.Status,
			Outcome:     datatypes.NewJSONType(outcome),
			AttemptedAt: at,
		}
		if err := tx.Create(&attempt).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record publish attempt")
		}

		if r.emitter == nil {
			return nil
		}
		var owner models.Post
		if err := tx.Select("id", "user_id").Where("id = ?", postID).Take(&owner).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load post owner")
		}
		return r.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPostPublishCompleted,
			AggregateType: enums.AggregatePost,
			AggregateID:   postID,
			Actor:         r.actor,
			OccurredAt:    at,
			Data: payloads.PostPublishCompletedEvent{
				PostID:      postID,
				UserID:      owner.UserID,
				Status:      outcome.Status,
				Succeeded:   outcome.Succeeded,
				Failed:      outcome.Failed,
				Error:       outcome.Error,
				AttemptedAt: at,
			},
		})
	})
}

func (r *repositoryImpl) CountScheduled(ctx context.Context) (int64, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.Post{}).
		Where("status = ?", enums.PostStatusScheduled).
		Count(&count).Error
	return count, err
}

// RecentPublished returns the latest delivered posts, newest first.
func (r *repositoryImpl) RecentPublished(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.Post
	err := r.base.DB(ctx).
		Where("status IN ?", []enums.PostStatus{enums.PostStatusPublished, enums.PostStatusPartiallyPublished}).
		Where("posted_at IS NOT NULL").
		Order("posted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListAttempts returns a post's attempt history, oldest first.
func (r *repositoryImpl) ListAttempts(ctx context.Context, postID uuid.UUID) ([]models.PublishAttempt, error) {
	var rows []models.PublishAttempt
	err := r.base.DB(ctx).
		Where("post_id = ?", postID).
		Order("attempted_at ASC").
		Find(&rows).Error
	return rows, err
}
