package model

import "time"

// Assignment links one collar to one animal for a period of time.
// EndedAt == nil means the assignment is open. Rows are closed, never deleted.
type Assignment struct {
	ID        int64      `gorm:"primaryKey"`
	CollarID  int64      `gorm:"index;not null"`
	AnimalID  int64      `gorm:"index;not null"`
	ActorID   *int64     `gorm:"index"`
	StartedAt time.Time  `gorm:"not null"`
	EndedAt   *time.Time `gorm:"index"`

	// Associations
	Collar Collar `gorm:"constraint:OnDelete:RESTRICT"`
	Animal Animal `gorm:"constraint:OnDelete:RESTRICT"`
}

// IsOpen reports whether the assignment is still in effect.
func (a *Assignment) IsOpen() bool {
	return a != nil && a.EndedAt == nil
}
