package model

import "time"

// LastKnownPosition holds the most recent fix of an animal (hot table).
// Exactly one row per animal, replaced on every write.
type LastKnownPosition struct {
	AnimalID   int64     `gorm:"primaryKey;autoIncrement:false"`
	Lat        float64   `gorm:"not null"`
	Lon        float64   `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null"`
}

// LocationSample is one entry of the location history log (cold table).
type LocationSample struct {
	ID         int64     `gorm:"primaryKey"`
	CollarID   int64     `gorm:"not null;index:idx_location_collar_time,priority:1"`
	RecordedAt time.Time `gorm:"not null;index:idx_location_collar_time,priority:2"`
	Lat        float64   `gorm:"not null"`
	Lon        float64   `gorm:"not null"`
}

// TemperatureSample is one entry of the temperature log, keyed by collar.
type TemperatureSample struct {
	ID         int64     `gorm:"primaryKey"`
	CollarID   int64     `gorm:"not null;index:idx_temperature_collar_time,priority:1"`
	AnimalID   int64     `gorm:"not null;index"`
	RecordedAt time.Time `gorm:"not null;index:idx_temperature_collar_time,priority:2"`
	Body       float64   `gorm:"not null"`
	Ambient    *float64
}

// AccelerationSample is one entry of the accelerometer log.
type AccelerationSample struct {
	ID         int64     `gorm:"primaryKey"`
	CollarID   int64     `gorm:"not null;index:idx_acceleration_collar_time,priority:1"`
	RecordedAt time.Time `gorm:"not null;index:idx_acceleration_collar_time,priority:2"`
	X          float64
	Y          float64
	Z          float64
}

// AuthorizedNode maps a reporting gateway client id to the collar it speaks for.
type AuthorizedNode struct {
	ID         int64  `gorm:"primaryKey"`
	ClientID   string `gorm:"uniqueIndex;size:128;not null"`
	Authorized bool   `gorm:"not null;default:false"`
	CollarID   *int64 `gorm:"index"`

	// Associations
	Collar *Collar `gorm:"constraint:OnDelete:SET NULL"`
}
