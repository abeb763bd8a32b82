package model

import (
	"time"

	"gorm.io/datatypes"
)

// Field is a farm holding that groups parcels.
type Field struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	OwnerID   *int64 `gorm:"index"`
	Lat       *float64
	Lon       *float64
	CreatedAt time.Time

	// Associations
	Parcels []Parcel `gorm:"foreignKey:FieldID"`
}

// Parcel is a geographic area inside a field. Boundary holds a GeoJSON Feature,
// Polygon or MultiPolygon; an empty boundary disables geofencing.
type Parcel struct {
	ID       int64          `gorm:"primaryKey"`
	FieldID  int64          `gorm:"index;not null"`
	Name     string         `gorm:"size:128;not null"`
	Boundary datatypes.JSON `gorm:"column:boundary"`

	// Associations
	Field Field `gorm:"constraint:OnDelete:CASCADE"`
}

// Animal is a tracked subject. Animals without a parcel have no geofence.
type Animal struct {
	ID         int64  `gorm:"primaryKey"`
	Identifier string `gorm:"uniqueIndex;size:64;not null"`
	Name       string `gorm:"size:128"`
	ParcelID   *int64 `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Parcel *Parcel `gorm:"constraint:OnDelete:SET NULL"`
}
