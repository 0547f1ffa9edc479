package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn returns the unbound connection.
func (b Base) Conn() *gorm.DB {
	return b.db
}

// IsPostgres reports whether the connection speaks the postgres dialect.
func (b Base) IsPostgres() bool {
	return b.db != nil && b.db.Dialector != nil && b.db.Dialector.Name() == "postgres"
}

// LockSkipLocked adds FOR UPDATE SKIP LOCKED to query on postgres. Other
// dialects (sqlite in tests and local runs) have no row locks, so the query is
// returned untouched.
func (b Base) LockSkipLocked(query *gorm.DB) *gorm.DB {
	if !b.IsPostgres() {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}

// IsSQLite reports whether the connection speaks the sqlite dialect.
func (b Base) IsSQLite() bool {
	return b.db != nil && b.db.Dialector != nil && b.db.Dialector.Name() == "sqlite"
}

// TimeAtOrBefore returns a condition comparing a timestamp column with one
// bound argument. sqlite keeps timestamps as text with the writer's offset,
// so both sides are converted with julianday there.
func (b Base) TimeAtOrBefore(column string) string {
	if b.IsSQLite() {
		return "julianday(" + column + ") <= julianday(?)"
	}
	return column + " <= ?"
}

// TimeOrder returns an ascending ORDER BY term for a timestamp column.
func (b Base) TimeOrder(column string) string {
	if b.IsSQLite() {
		return "julianday(" + column + ") ASC"
	}
	return column + " ASC"
}
