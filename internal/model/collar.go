package model

import (
	"time"

	"gorm.io/gorm"
)

// CollarState is one row of the collar state catalog.
type CollarState struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:32;not null"`
}

// Collar represents a physical tracking device.
type Collar struct {
	ID           int64    `gorm:"primaryKey"`
	Code         string   `gorm:"uniqueIndex;size:16;not null"`
	Battery      *float64 // 0-100, nil when unknown
	LastActivity *time.Time
	StateID      int64 `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`

	// Associations
	State CollarState `gorm:"foreignKey:StateID;constraint:OnDelete:RESTRICT"`
}
