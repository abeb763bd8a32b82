// Package geofence classifies animal positions against their parcel boundary.
package geofence

import (
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"livestock-collar-backend/internal/model"
)

// Verdict is the outcome of classifying one position.
type Verdict string

const (
	Inside  Verdict = "inside"
	Outside Verdict = "outside"
	Unknown Verdict = "unknown"
)

// Position is a single fix.
type Position struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Subject is an animal with its parcel boundary and last known position.
type Subject struct {
	AnimalID   int64          `json:"animalId"`
	Identifier string         `json:"identifier"`
	Name       string         `json:"name,omitempty"`
	ParcelID   *int64         `json:"parcelId,omitempty"`
	FieldID    *int64         `json:"fieldId,omitempty"`
	Boundary   datatypes.JSON `json:"-"`
	Position   *Position      `json:"position,omitempty"`
}

// Partition splits the animals of a field by verdict.
type Partition struct {
	Inside  []Subject `json:"inside"`
	Outside []Subject `json:"outside"`
	Unknown []Subject `json:"unknown"`
}

// Evaluator classifies positions. It never returns geometry errors; malformed
// boundaries are logged and treated as having no geofence.
type Evaluator struct {
	maxFixAge time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// New creates an evaluator. A positive maxFixAge makes older fixes unknown.
func New(maxFixAge time.Duration, log *zap.Logger) *Evaluator {
	return &Evaluator{maxFixAge: maxFixAge, now: time.Now, log: log.Named("geofence")}
}

// IsOutside reports whether (lon, lat) lies outside the animal's parcel. It is
// false when the animal has no parcel, the parcel has no boundary, or the
// boundary cannot be parsed. The parcel must be preloaded. It is the same
// predicate as Classify returning Outside, without the fix age check.
func (e *Evaluator) IsOutside(animal *model.Animal, lon, lat float64) bool {
	if animal == nil || animal.Parcel == nil {
		return false
	}
	return e.classifyPoint(animal.ID, animal.Parcel.Boundary, orb.Point{lon, lat}) == Outside
}

// Classify evaluates a subject's last position.
func (e *Evaluator) Classify(s Subject) Verdict {
	if s.Position == nil {
		return Unknown
	}
	if e.maxFixAge > 0 && e.now().Sub(s.Position.RecordedAt) > e.maxFixAge {
		return Unknown
	}
	return e.classifyPoint(s.AnimalID, s.Boundary, orb.Point{s.Position.Lon, s.Position.Lat})
}

// Partition classifies every subject. Animals without a fix or without a usable
// boundary land in Unknown.
func (e *Evaluator) Partition(subjects []Subject) Partition {
	p := Partition{Inside: []Subject{}, Outside: []Subject{}, Unknown: []Subject{}}
	for _, s := range subjects {
		switch e.Classify(s) {
		case Inside:
			p.Inside = append(p.Inside, s)
		case Outside:
			p.Outside = append(p.Outside, s)
		default:
			p.Unknown = append(p.Unknown, s)
		}
	}
	return p
}

func (e *Evaluator) classifyPoint(animalID int64, boundary []byte, pt orb.Point) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("containment test panicked", zap.Int64("animal_id", animalID), zap.Any("panic", r))
			v = Unknown
		}
	}()
	geom, err := ParseBoundary(boundary)
	if err != nil {
		e.log.Warn("ignoring unusable parcel boundary", zap.Int64("animal_id", animalID), zap.Error(err))
		return Unknown
	}
	if geom == nil {
		return Unknown
	}
	inside, err := Contains(geom, pt)
	if err != nil {
		e.log.Warn("containment test failed", zap.Int64("animal_id", animalID), zap.Error(err))
		return Unknown
	}
	if inside {
		return Inside
	}
	return Outside
}
