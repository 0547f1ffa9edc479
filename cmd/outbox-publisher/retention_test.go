package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeRetentionRepo struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeRetentionRepo) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func newTestPruner(t *testing.T, repo *fakeRetentionRepo, days int) *pruner {
	t.Helper()
	p, err := newPruner(pruneParams{
		Logger:        quietLogger(),
		DB:            &fakeDB{},
		Repository:    repo,
		RetentionDays: days,
	})
	if err != nil {
		t.Fatalf("newPruner: %v", err)
	}
	return p
}

func TestPrunerUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeRetentionRepo{}
	p := newTestPruner(t, repo, 0)
	p.now = func() time.Time { return now }

	if err := p.pruneOnce(context.Background()); err != nil {
		t.Fatalf("pruneOnce: %v", err)
	}
	expected := now.Add(-defaultRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func TestPrunerPropagatesError(t *testing.T) {
	p := newTestPruner(t, &fakeRetentionRepo{err: errors.New("boom")}, 7)
	if err := p.pruneOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPrunerRunStopsOnCancel(t *testing.T) {
	repo := &fakeRetentionRepo{}
	p := newTestPruner(t, repo, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.called != 1 {
		t.Fatalf("expected one sweep before exit, got %d", repo.called)
	}
}
