// Package testdb opens migrated in-memory sqlite databases for repository
// tests.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/postpilot/postpilot-backend/pkg/db/models"
	dbtypes "github.com/postpilot/postpilot-backend/pkg/db/types"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/migrate"
)

// Open returns a fresh database with every sqlite migration applied. Each
// call gets its own named in-memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(context.Background(), sqlDB, migrate.DialectSQLite, "up"); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// PostSeed describes a post row for tests. Zero values get defaults.
type PostSeed struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Caption     string
	ImageURL    string
	Subreddit   string
	Platforms   []enums.Platform
	Status      enums.PostStatus
	ScheduledAt *time.Time
}

// InsertPost writes a post and returns it as stored.
func InsertPost(t testing.TB, db *gorm.DB, seed PostSeed) models.Post {
	t.Helper()

	if seed.ID == uuid.Nil {
		seed.ID = uuid.New()
	}
	if seed.UserID == uuid.Nil {
		seed.UserID = uuid.New()
	}
	if seed.Status == "" {
		seed.Status = enums.PostStatusScheduled
	}
	post := models.Post{
		ID:          seed.ID,
		UserID:      seed.UserID,
		Caption:     seed.Caption,
		Platforms:   dbtypes.PlatformList(seed.Platforms),
		Status:      seed.Status,
		ScheduledAt: seed.ScheduledAt,
	}
	if seed.ImageURL != "" {
		post.ImageURL = &seed.ImageURL
	}
	if seed.Subreddit != "" {
		post.Subreddit = &seed.Subreddit
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return post
}

// InsertCalendarEvent writes the calendar projection for post.
func InsertCalendarEvent(t testing.TB, db *gorm.DB, post models.Post) models.CalendarEvent {
	t.Helper()

	startsAt := time.Now().UTC()
	if post.ScheduledAt != nil {
		startsAt = *post.ScheduledAt
	}
	event := models.CalendarEvent{
		ID:       uuid.New(),
		PostID:   post.ID,
		UserID:   post.UserID,
		Title:    post.Caption,
		Status:   post.Status,
		StartsAt: startsAt,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("insert calendar event: %v", err)
	}
	return event
}

// TimePtr returns a pointer to the UTC form of ts.
func TimePtr(ts time.Time) *time.Time {
	utc := ts.UTC()
	return &utc
}
