// Package ledger keeps the append-only assignment history. Every operation runs
// inside a transaction supplied by the caller, so the ledger never commits on
// its own.
package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/db"
	"livestock-collar-backend/internal/model"
)

// Ledger opens and closes assignments.
type Ledger struct {
	now func() time.Time
}

// New creates a ledger. A nil clock defaults to time.Now.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Open inserts a new open assignment. Losing a race against the open-row unique
// indexes is reported as a conflict.
func (l *Ledger) Open(ctx context.Context, tx *gorm.DB, collarID, animalID int64, actorID *int64) (*model.Assignment, error) {
	a := &model.Assignment{
		CollarID:  collarID,
		AnimalID:  animalID,
		ActorID:   actorID,
		StartedAt: l.now(),
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("collar %d or animal %d already has an open assignment", collarID, animalID)
		}
		return nil, fmt.Errorf("failed to open assignment for collar %d: %w", collarID, err)
	}
	return a, nil
}

// Close ends an open assignment. Closing an already closed assignment is a no-op.
func (l *Ledger) Close(ctx context.Context, tx *gorm.DB, a *model.Assignment) error {
	if !a.IsOpen() {
		return nil
	}
	endedAt := l.now()
	if err := tx.WithContext(ctx).Model(&model.Assignment{}).
		Where("id = ? AND ended_at IS NULL", a.ID).
		Update("ended_at", endedAt).Error; err != nil {
		return fmt.Errorf("failed to close assignment %d: %w", a.ID, err)
	}
	a.EndedAt = &endedAt
	return nil
}

// OpenForCollar returns the open assignment of a collar, or nil when there is none.
// The row is locked for the rest of the transaction where the database supports it.
func (l *Ledger) OpenForCollar(ctx context.Context, tx *gorm.DB, collarID int64) (*model.Assignment, error) {
	return l.findOpen(ctx, tx, "collar_id", collarID)
}

// OpenForAnimal returns the open assignment of an animal, or nil when there is none.
func (l *Ledger) OpenForAnimal(ctx context.Context, tx *gorm.DB, animalID int64) (*model.Assignment, error) {
	return l.findOpen(ctx, tx, "animal_id", animalID)
}

func (l *Ledger) findOpen(ctx context.Context, tx *gorm.DB, column string, id int64) (*model.Assignment, error) {
	var rows []model.Assignment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(column+" = ? AND ended_at IS NULL", id).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up open assignment by %s %d: %w", column, id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
