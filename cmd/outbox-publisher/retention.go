package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postpilot/postpilot-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultPruneInterval = time.Hour
)

type retentionRepository interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type pruneParams struct {
	Logger        *logger.Logger
	DB            dbClient
	Repository    retentionRepository
	RetentionDays int
	Interval      time.Duration
}

// pruner deletes relayed outbox rows once they are older than the retention
// window.
type pruner struct {
	logg      *logger.Logger
	db        dbClient
	repo      retentionRepository
	retention int
	interval  time.Duration
	now       func() time.Time
}

func newPruner(params pruneParams) (*pruner, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &pruner{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}, nil
}

func (p *pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.pruneOnce(ctx); err != nil {
			p.logg.Error(ctx, "outbox retention failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *pruner) pruneOnce(ctx context.Context) error {
	cutoff := p.now().UTC().Add(-time.Duration(p.retention) * 24 * time.Hour)
	var deleted int64
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := p.repo.DeletePublishedBefore(tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": p.retention,
		"rows_deleted":   deleted,
	}), "outbox retention cleanup complete")
	return nil
}
