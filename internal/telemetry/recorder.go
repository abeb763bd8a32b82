// Package telemetry records collar samples: positions, temperatures,
// accelerations and battery levels.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/model"
)

// Position is a GPS fix.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Temperature holds body and optional ambient readings in degrees Celsius.
type Temperature struct {
	Body    float64  `json:"body"`
	Ambient *float64 `json:"ambient"`
}

// Acceleration is one accelerometer reading.
type Acceleration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is everything a collar reported at one instant. Absent parts are nil.
type Sample struct {
	ClientID     string        `json:"-"`
	CollarCode   string        `json:"collarCode"`
	Timestamp    time.Time     `json:"timestamp"`
	Position     *Position     `json:"position"`
	Temperature  *Temperature  `json:"temperature"`
	Acceleration *Acceleration `json:"acceleration"`
	Battery      *float64      `json:"battery"`
}

// Result reports what Record stored.
type Result struct {
	CollarCode   string `json:"collarCode"`
	AnimalID     *int64 `json:"animalId"`
	Location     bool   `json:"location"`
	Temperature  bool   `json:"temperature"`
	Acceleration bool   `json:"acceleration"`
}

// Notifier is told about fresh positions of assigned animals after commit.
type Notifier interface {
	Dispatch(animalID int64)
}

// Recorder writes samples in one transaction per call.
type Recorder struct {
	db       *gorm.DB
	auth     Authorizer
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a recorder. notifier may be nil.
func NewRecorder(db *gorm.DB, auth Authorizer, notifier Notifier, log *zap.Logger) *Recorder {
	return &Recorder{db: db, auth: auth, notifier: notifier, log: log.Named("telemetry"), now: time.Now}
}

// Record authorizes the sample and stores its parts. Temperatures are only kept
// while the collar is assigned; positions also refresh the animal's last known
// position.
func (r *Recorder) Record(ctx context.Context, s Sample) (*Result, error) {
	code, err := r.auth.Authorize(ctx, s.ClientID, s.CollarCode)
	if err != nil {
		return nil, err
	}
	if s.Battery != nil && (*s.Battery < 0 || *s.Battery > 100) {
		return nil, apperr.Validation("battery level %.1f out of range 0-100", *s.Battery)
	}
	if s.Position != nil && (s.Position.Lat < -90 || s.Position.Lat > 90 || s.Position.Lon < -180 || s.Position.Lon > 180) {
		return nil, apperr.Validation("position %.6f,%.6f out of range", s.Position.Lat, s.Position.Lon)
	}
	at := s.Timestamp
	if at.IsZero() {
		at = r.now()
	}

	result := &Result{CollarCode: code}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var collar model.Collar
		if err := tx.Where("code = ?", code).First(&collar).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("collar %s", code)
			}
			return fmt.Errorf("failed to load collar %s: %w", code, err)
		}

		var open []model.Assignment
		if err := tx.Where("collar_id = ? AND ended_at IS NULL", collar.ID).Find(&open).Error; err != nil {
			return fmt.Errorf("failed to look up assignment of collar %s: %w", code, err)
		}
		if len(open) > 0 {
			result.AnimalID = &open[0].AnimalID
		}

		if s.Position != nil {
			if err := recordPosition(tx, collar.ID, result.AnimalID, *s.Position, at); err != nil {
				return err
			}
			result.Location = true
		}

		if s.Temperature != nil {
			if result.AnimalID == nil {
				r.log.Debug("dropping temperature of unassigned collar", zap.String("code", code))
			} else {
				sample := model.TemperatureSample{
					CollarID:   collar.ID,
					AnimalID:   *result.AnimalID,
					RecordedAt: at,
					Body:       s.Temperature.Body,
					Ambient:    s.Temperature.Ambient,
				}
				if err := tx.Create(&sample).Error; err != nil {
					return fmt.Errorf("failed to store temperature of collar %s: %w", code, err)
				}
				result.Temperature = true
			}
		}

		if s.Acceleration != nil {
			sample := model.AccelerationSample{
				CollarID:   collar.ID,
				RecordedAt: at,
				X:          s.Acceleration.X,
				Y:          s.Acceleration.Y,
				Z:          s.Acceleration.Z,
			}
			if err := tx.Create(&sample).Error; err != nil {
				return fmt.Errorf("failed to store acceleration of collar %s: %w", code, err)
			}
			result.Acceleration = true
		}

		updates := map[string]any{"last_activity": at}
		if s.Battery != nil {
			updates["battery"] = *s.Battery
		}
		if err := tx.Model(&collar).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to touch collar %s: %w", code, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Location && result.AnimalID != nil && r.notifier != nil {
		r.notifier.Dispatch(*result.AnimalID)
	}
	return result, nil
}

func recordPosition(tx *gorm.DB, collarID int64, animalID *int64, p Position, at time.Time) error {
	sample := model.LocationSample{CollarID: collarID, RecordedAt: at, Lat: p.Lat, Lon: p.Lon}
	if err := tx.Create(&sample).Error; err != nil {
		return fmt.Errorf("failed to store location of collar %d: %w", collarID, err)
	}
	if animalID == nil {
		return nil
	}
	last := model.LastKnownPosition{AnimalID: *animalID, Lat: p.Lat, Lon: p.Lon, RecordedAt: at}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "animal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"lat", "lon", "recorded_at"}),
	}).Create(&last).Error; err != nil {
		return fmt.Errorf("failed to update last position of animal %d: %w", *animalID, err)
	}
	return nil
}
