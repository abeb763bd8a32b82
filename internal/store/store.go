package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/model"
)

// Store defines the read side and the subscription bookkeeping used by the API.
type Store interface {
	ListCollars(ctx context.Context, filter CollarFilter) ([]CollarView, error)
	GetCollar(ctx context.Context, id int64) (*CollarView, error)
	AvailableCollars(ctx context.Context) ([]CollarView, error)
	ExportRows(ctx context.Context, filter CollarFilter) ([]ExportRow, error)
	AssignmentHistory(ctx context.Context, collarID int64) ([]HistoryEntry, error)
	AnimalFixesInField(ctx context.Context, fieldID int64) ([]geofence.Subject, error)
	AnimalSubject(ctx context.Context, animalID int64) (*geofence.Subject, error)
	CollarsAtOrBelowBattery(ctx context.Context, threshold float64, skipStates []string) ([]model.Collar, error)

	SavePushSubscription(ctx context.Context, sub model.PushSubscription, fieldIDs []int64) error
	GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForField(ctx context.Context, fieldID int64) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

const collarViewColumns = `collars.id, collars.code, collar_states.name AS state, collars.battery, collars.last_activity,
	animals.id AS animal_id, animals.identifier AS animal_identifier, animals.name AS animal_name,
	assignments.started_at AS assigned_at`

func (s *gormStore) collarViews(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("collars").
		Select(collarViewColumns).
		Joins("JOIN collar_states ON collar_states.id = collars.state_id").
		Joins("LEFT JOIN assignments ON assignments.collar_id = collars.id AND assignments.ended_at IS NULL").
		Joins("LEFT JOIN animals ON animals.id = assignments.animal_id").
		Where("collars.deleted_at IS NULL")
}

func applyFilter(q *gorm.DB, f CollarFilter) *gorm.DB {
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + strings.ToUpper(term) + "%"
		q = q.Where("(UPPER(collars.code) LIKE ? OR UPPER(animals.identifier) LIKE ?)", pattern, pattern)
	}
	if state := strings.TrimSpace(f.State); state != "" {
		q = q.Where("collar_states.name = ?", strings.ToLower(state))
	}
	if len(f.IDs) > 0 {
		q = q.Where("collars.id IN ?", f.IDs)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q.Order("collars.code")
}

// ListCollars returns collars with their state name and current animal.
func (s *gormStore) ListCollars(ctx context.Context, filter CollarFilter) ([]CollarView, error) {
	views := []CollarView{}
	if err := applyFilter(s.collarViews(ctx), filter).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to list collars: %w", err)
	}
	return views, nil
}

// GetCollar returns one collar view.
func (s *gormStore) GetCollar(ctx context.Context, id int64) (*CollarView, error) {
	var views []CollarView
	if err := s.collarViews(ctx).Where("collars.id = ?", id).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to get collar %d: %w", id, err)
	}
	if len(views) == 0 {
		return nil, apperr.NotFound("collar %d", id)
	}
	return &views[0], nil
}

// AvailableCollars lists collars that can be handed out right now.
func (s *gormStore) AvailableCollars(ctx context.Context) ([]CollarView, error) {
	views := []CollarView{}
	err := s.collarViews(ctx).
		Where("collar_states.name = ? AND assignments.id IS NULL", "available").
		Order("collars.code").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list available collars: %w", err)
	}
	return views, nil
}

// ExportRows returns (code, animal identifier) pairs ready for the import format.
func (s *gormStore) ExportRows(ctx context.Context, filter CollarFilter) ([]ExportRow, error) {
	views, err := s.ListCollars(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(views))
	for _, v := range views {
		row := ExportRow{Code: v.Code}
		if v.AnimalIdentifier != nil {
			row.AnimalIdentifier = *v.AnimalIdentifier
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AssignmentHistory lists all assignments of a collar, newest first.
func (s *gormStore) AssignmentHistory(ctx context.Context, collarID int64) ([]HistoryEntry, error) {
	entries := []HistoryEntry{}
	err := s.db.WithContext(ctx).
		Table("assignments").
		Select(`assignments.id AS assignment_id, assignments.animal_id, animals.identifier AS animal_identifier,
			animals.name AS animal_name, assignments.actor_id, assignments.started_at, assignments.ended_at`).
		Joins("JOIN animals ON animals.id = assignments.animal_id").
		Where("assignments.collar_id = ?", collarID).
		Order("assignments.started_at DESC, assignments.id DESC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of collar %d: %w", collarID, err)
	}
	return entries, nil
}

type subjectRow struct {
	AnimalID   int64
	Identifier string
	Name       string
	ParcelID   *int64
	FieldID    *int64
	Boundary   []byte
	Lat        *float64
	Lon        *float64
	RecordedAt *time.Time
}

func (s *gormStore) subjects(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("animals").
		Select(`animals.id AS animal_id, animals.identifier, animals.name, animals.parcel_id,
			parcels.field_id, parcels.boundary, last_known_positions.lat, last_known_positions.lon, last_known_positions.recorded_at`).
		Joins("LEFT JOIN parcels ON parcels.id = animals.parcel_id").
		Joins("LEFT JOIN last_known_positions ON last_known_positions.animal_id = animals.id")
}

// AnimalFixesInField returns every animal grazing in the field's parcels with
// its boundary and last known position.
func (s *gormStore) AnimalFixesInField(ctx context.Context, fieldID int64) ([]geofence.Subject, error) {
	var rows []subjectRow
	if err := s.subjects(ctx).Where("parcels.field_id = ?", fieldID).Order("animals.id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load animals of field %d: %w", fieldID, err)
	}
	out := make([]geofence.Subject, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.subject())
	}
	return out, nil
}

// AnimalSubject returns one animal with boundary and last known position.
func (s *gormStore) AnimalSubject(ctx context.Context, animalID int64) (*geofence.Subject, error) {
	var rows []subjectRow
	if err := s.subjects(ctx).Where("animals.id = ?", animalID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load animal %d: %w", animalID, err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("animal %d", animalID)
	}
	subject := rows[0].subject()
	return &subject, nil
}

func (r subjectRow) subject() geofence.Subject {
	s := geofence.Subject{
		AnimalID:   r.AnimalID,
		Identifier: r.Identifier,
		Name:       r.Name,
		ParcelID:   r.ParcelID,
		FieldID:    r.FieldID,
		Boundary:   r.Boundary,
	}
	if r.Lat != nil && r.Lon != nil && r.RecordedAt != nil {
		s.Position = &geofence.Position{Lat: *r.Lat, Lon: *r.Lon, RecordedAt: *r.RecordedAt}
	}
	return s
}

// CollarsAtOrBelowBattery lists live collars whose battery is known and at or
// below threshold, skipping the given states.
func (s *gormStore) CollarsAtOrBelowBattery(ctx context.Context, threshold float64, skipStates []string) ([]model.Collar, error) {
	var collars []model.Collar
	q := s.db.WithContext(ctx).
		Joins("State").
		Where("collars.battery IS NOT NULL AND collars.battery <= ?", threshold)
	if len(skipStates) > 0 {
		q = q.Where(`"State"."name" NOT IN ?`, skipStates)
	}
	if err := q.Order("collars.id").Find(&collars).Error; err != nil {
		return nil, fmt.Errorf("failed to list collars with low battery: %w", err)
	}
	return collars, nil
}

// SavePushSubscription creates or replaces a subscription and its followed fields.
func (s *gormStore) SavePushSubscription(ctx context.Context, sub model.PushSubscription, fieldIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Fields").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return err
		}

		var fields []*model.Field
		if len(fieldIDs) > 0 {
			if err := tx.Find(&fields, fieldIDs).Error; err != nil {
				return err
			}
		}
		return tx.Model(&sub).Association("Fields").Replace(&fields)
	})
}

// GetPushSubscription loads a subscription with its fields.
func (s *gormStore) GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Fields").First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("subscription")
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeletePushSubscription removes a subscription and its field links.
func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Fields").Clear(); err != nil {
			return err
		}
		return tx.Delete(&sub).Error
	})
}

// SubscriptionsForField returns subscriptions following the field.
func (s *gormStore) SubscriptionsForField(ctx context.Context, fieldID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_field_mapping sfm ON sfm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sfm.field_id = ?", fieldID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for field %d: %w", fieldID, err)
	}
	return subs, nil
}
