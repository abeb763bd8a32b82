package model

import "time"

// PushSubscription holds a browser push subscription that receives geofence
// breach alerts for the fields it follows.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Fields []*Field `gorm:"many2many:subscription_field_mapping;"`
}
