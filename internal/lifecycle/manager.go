// Package lifecycle drives collar state transitions and assignments.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/db"
	"livestock-collar-backend/internal/ledger"
	"livestock-collar-backend/internal/model"
	"livestock-collar-backend/internal/parse"
)

// MaxBatchSize caps how many collars CreateBatch creates per call.
const MaxBatchSize = 50

const fullBattery = 100.0

// Manager owns collar state transitions. Public methods run in their own
// transaction; the Tx variants join a transaction owned by the caller.
type Manager struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	log     *zap.Logger
	now     func() time.Time
}

// New creates a lifecycle manager.
func New(gormDB *gorm.DB, cat *catalog.Catalog, l *ledger.Ledger, log *zap.Logger) *Manager {
	return &Manager{
		db:      gormDB,
		catalog: cat,
		ledger:  l,
		log:     log.Named("lifecycle"),
		now:     time.Now,
	}
}

// Create registers a new collar in the available state.
func (m *Manager) Create(ctx context.Context, rawCode string) (*model.Collar, error) {
	var collar *model.Collar
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		collar, err = m.CreateTx(ctx, tx, rawCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("collar created", zap.String("code", collar.Code))
	return collar, nil
}

// CreateTx is Create inside the caller's transaction. Codes of deleted collars
// stay reserved.
func (m *Manager) CreateTx(ctx context.Context, tx *gorm.DB, rawCode string) (*model.Collar, error) {
	code, err := parse.NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	availableID, err := m.catalog.MustHave(catalog.Available)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := tx.WithContext(ctx).Unscoped().Model(&model.Collar{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check collar code %s: %w", code, err)
	}
	if count > 0 {
		return nil, apperr.Conflict("duplicate collar code %s", code)
	}

	now := m.now()
	battery := fullBattery
	collar := &model.Collar{
		Code:         code,
		Battery:      &battery,
		LastActivity: &now,
		StateID:      availableID,
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(collar).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("duplicate collar code %s", code)
		}
		return nil, fmt.Errorf("failed to create collar %s: %w", code, err)
	}
	return collar, nil
}

// CreateBatch creates quantity collars named BASE-n, continuing after the
// highest sequence already used by that base.
func (m *Manager) CreateBatch(ctx context.Context, rawBase string, quantity int) (*BatchResult, error) {
	base, err := parse.ValidBase(rawBase)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 || quantity > MaxBatchSize {
		return nil, apperr.Validation("quantity must be between 1 and %d", MaxBatchSize)
	}

	var codes []string
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Unscoped().Model(&model.Collar{}).
			Where("code LIKE ?", base+"-%").
			Pluck("code", &existing).Error; err != nil {
			return fmt.Errorf("failed to list codes for base %s: %w", base, err)
		}
		next, err := parse.NextCodes(base, existing, quantity)
		if err != nil {
			return err
		}
		for _, code := range next {
			if _, err := m.CreateTx(ctx, tx, code); err != nil {
				return err
			}
		}
		codes = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("collar batch created", zap.String("base", base), zap.Int("count", len(codes)))
	return &BatchResult{
		FirstCode: codes[0],
		LastCode:  codes[len(codes)-1],
		Count:     len(codes),
		Codes:     codes,
	}, nil
}

// FindByCodeTx loads a collar by normalized code.
func (m *Manager) FindByCodeTx(ctx context.Context, tx *gorm.DB, code string) (*model.Collar, error) {
	var rows []model.Collar
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to look up collar %s: %w", code, err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("collar %s", code)
	}
	return &rows[0], nil
}

// Assign attaches the collar to the animal. A nil animalID unassigns.
func (m *Manager) Assign(ctx context.Context, collarID int64, animalID *int64, actorID *int64) (*AssignResult, error) {
	var result *AssignResult
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collar, err := lockCollar(ctx, tx, collarID)
		if err != nil {
			return err
		}
		var animal *model.Animal
		if animalID != nil {
			if animal, err = findAnimal(ctx, tx, *animalID); err != nil {
				return err
			}
		}
		result, err = m.AssignTx(ctx, tx, collar, animal, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		m.log.Info("collar assignment changed",
			zap.String("code", result.CollarCode),
			zap.String("summary", result.Summary()))
	}
	return result, nil
}

// Unassign detaches the collar from whatever animal wears it.
func (m *Manager) Unassign(ctx context.Context, collarID int64, actorID *int64) (*AssignResult, error) {
	return m.Assign(ctx, collarID, nil, actorID)
}

// AssignTx runs the assignment algorithm inside the caller's transaction. A nil
// animal unassigns. Low-battery and defective collars keep their state.
func (m *Manager) AssignTx(ctx context.Context, tx *gorm.DB, collar *model.Collar, animal *model.Animal, actorID *int64) (*AssignResult, error) {
	availableID, err := m.catalog.MustHave(catalog.Available)
	if err != nil {
		return nil, err
	}
	activeID, err := m.catalog.MustHave(catalog.Active)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{CollarCode: collar.Code}
	if animal != nil {
		result.AssignedTo = refOf(animal)
	}

	current, err := m.ledger.OpenForCollar(ctx, tx, collar.ID)
	if err != nil {
		return nil, err
	}

	if animal != nil && current != nil && current.AnimalID == animal.ID {
		return result, nil
	}
	if animal == nil && current == nil {
		return result, nil
	}
	result.Changed = true

	if current != nil {
		if err := m.ledger.Close(ctx, tx, current); err != nil {
			return nil, err
		}
		previous, err := findAnimal(ctx, tx, current.AnimalID)
		if err != nil {
			return nil, err
		}
		result.UnassignedFrom = refOf(previous)
	}

	if animal == nil {
		if err := m.setStateUnlessSticky(ctx, tx, collar, availableID); err != nil {
			return nil, err
		}
		return result, nil
	}

	other, err := m.ledger.OpenForAnimal(ctx, tx, animal.ID)
	if err != nil {
		return nil, err
	}
	if other != nil {
		if err := m.ledger.Close(ctx, tx, other); err != nil {
			return nil, err
		}
		otherCollar, err := lockCollarUnscoped(ctx, tx, other.CollarID)
		if err != nil {
			return nil, err
		}
		if err := m.setStateUnlessSticky(ctx, tx, otherCollar, availableID); err != nil {
			return nil, err
		}
		result.ReplacedCollarCode = otherCollar.Code
	}

	if _, err := m.ledger.Open(ctx, tx, collar.ID, animal.ID, actorID); err != nil {
		return nil, err
	}
	if err := m.setStateUnlessSticky(ctx, tx, collar, activeID); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkLowBattery forces the collar into the low-battery state.
func (m *Manager) MarkLowBattery(ctx context.Context, collarID int64) (*model.Collar, error) {
	return m.override(ctx, collarID, catalog.LowBattery)
}

// MarkDefective forces the collar into the defective state.
func (m *Manager) MarkDefective(ctx context.Context, collarID int64) (*model.Collar, error) {
	return m.override(ctx, collarID, catalog.Defective)
}

func (m *Manager) override(ctx context.Context, collarID int64, state catalog.State) (*model.Collar, error) {
	stateID, err := m.catalog.MustHave(state)
	if err != nil {
		return nil, err
	}
	var collar *model.Collar
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if collar, err = lockCollar(ctx, tx, collarID); err != nil {
			return err
		}
		return m.updateState(ctx, tx, collar, stateID)
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("collar state overridden", zap.String("code", collar.Code), zap.String("state", string(state)))
	return collar, nil
}

// CollarUpdate is an operator change to a collar. Nil fields are left alone.
type CollarUpdate struct {
	State   *string
	Battery *float64
}

// Update validates every field of u before touching the collar and applies
// them in one transaction, so a rejected state never leaves a new battery
// level behind. Active and low-battery are derived states and cannot be
// chosen. Available clears a sticky state and resolves to active while the
// collar is still assigned.
func (m *Manager) Update(ctx context.Context, collarID int64, u CollarUpdate) (*model.Collar, error) {
	if u.State == nil && u.Battery == nil {
		return nil, apperr.Validation("nothing to update")
	}
	var (
		requested   catalog.State
		requestedID int64
		activeID    int64
		err         error
	)
	if u.State != nil {
		if requested, requestedID, err = m.manualState(*u.State); err != nil {
			return nil, err
		}
		if activeID, err = m.catalog.MustHave(catalog.Active); err != nil {
			return nil, err
		}
	}
	if u.Battery != nil {
		if err := checkBattery(*u.Battery); err != nil {
			return nil, err
		}
	}

	var collar *model.Collar
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if collar, err = lockCollar(ctx, tx, collarID); err != nil {
			return err
		}
		if u.Battery != nil {
			if err := m.writeBattery(tx, collar, u.Battery); err != nil {
				return err
			}
		}
		if u.State == nil {
			return nil
		}
		target := requestedID
		if requested == catalog.Available {
			open, err := m.ledger.OpenForCollar(ctx, tx, collar.ID)
			if err != nil {
				return err
			}
			if open != nil {
				target = activeID
			}
		}
		return m.updateState(ctx, tx, collar, target)
	})
	if err != nil {
		return nil, err
	}
	if u.State != nil {
		m.log.Info("collar state set", zap.String("code", collar.Code), zap.String("requested", string(requested)))
	}
	return collar, nil
}

// SetState applies a state change requested by an operator.
func (m *Manager) SetState(ctx context.Context, collarID int64, name string) (*model.Collar, error) {
	return m.Update(ctx, collarID, CollarUpdate{State: &name})
}

// UpdateBattery records a battery reading (nil clears it) and touches last activity.
func (m *Manager) UpdateBattery(ctx context.Context, collarID int64, level *float64) (*model.Collar, error) {
	if level != nil {
		if err := checkBattery(*level); err != nil {
			return nil, err
		}
	}
	var collar *model.Collar
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if collar, err = lockCollar(ctx, tx, collarID); err != nil {
			return err
		}
		return m.writeBattery(tx, collar, level)
	})
	if err != nil {
		return nil, err
	}
	return collar, nil
}

func (m *Manager) manualState(name string) (catalog.State, int64, error) {
	id, err := m.catalog.ResolveID(name)
	if err != nil {
		return "", 0, apperr.Validation("unknown collar state %q", name)
	}
	state, err := m.catalog.ResolveName(id)
	if err != nil {
		return "", 0, err
	}
	if state == catalog.Active || state == catalog.LowBattery {
		return "", 0, apperr.Validation("state %q cannot be set manually", state)
	}
	return state, id, nil
}

func checkBattery(level float64) error {
	if level < 0 || level > 100 {
		return apperr.Validation("battery level %.1f out of range 0-100", level)
	}
	return nil
}

func (m *Manager) writeBattery(tx *gorm.DB, collar *model.Collar, level *float64) error {
	now := m.now()
	if err := tx.Model(collar).Updates(map[string]any{
		"battery":       level,
		"last_activity": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to update battery of collar %s: %w", collar.Code, err)
	}
	collar.Battery = level
	collar.LastActivity = &now
	return nil
}

// Delete closes the collar's open assignment and soft-deletes it. Assignment
// history is kept.
func (m *Manager) Delete(ctx context.Context, collarID int64) error {
	var code string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collar, err := lockCollar(ctx, tx, collarID)
		if err != nil {
			return err
		}
		code = collar.Code
		open, err := m.ledger.OpenForCollar(ctx, tx, collar.ID)
		if err != nil {
			return err
		}
		if open != nil {
			if err := m.ledger.Close(ctx, tx, open); err != nil {
				return err
			}
		}
		if err := tx.Delete(collar).Error; err != nil {
			return fmt.Errorf("failed to delete collar %s: %w", collar.Code, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info("collar deleted", zap.String("code", code))
	return nil
}

func (m *Manager) setStateUnlessSticky(ctx context.Context, tx *gorm.DB, collar *model.Collar, stateID int64) error {
	if m.catalog.IsSticky(collar.StateID) {
		return nil
	}
	return m.updateState(ctx, tx, collar, stateID)
}

func (m *Manager) updateState(ctx context.Context, tx *gorm.DB, collar *model.Collar, stateID int64) error {
	if collar.StateID == stateID {
		return nil
	}
	if err := tx.WithContext(ctx).Model(&model.Collar{}).Unscoped().
		Where("id = ?", collar.ID).
		Update("state_id", stateID).Error; err != nil {
		return fmt.Errorf("failed to update state of collar %s: %w", collar.Code, err)
	}
	collar.StateID = stateID
	return nil
}

// lockCollarUnscoped also finds soft-deleted collars, which may still appear in
// assignment rows.
func lockCollarUnscoped(ctx context.Context, tx *gorm.DB, id int64) (*model.Collar, error) {
	return lockCollar(ctx, tx.Unscoped(), id)
}

func lockCollar(ctx context.Context, tx *gorm.DB, id int64) (*model.Collar, error) {
	var collar model.Collar
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&collar, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("collar %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collar %d: %w", id, err)
	}
	return &collar, nil
}

func findAnimal(ctx context.Context, tx *gorm.DB, id int64) (*model.Animal, error) {
	var animal model.Animal
	err := tx.WithContext(ctx).First(&animal, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("animal %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load animal %d: %w", id, err)
	}
	return &animal, nil
}

func refOf(a *model.Animal) *AnimalRef {
	return &AnimalRef{ID: a.ID, Identifier: a.Identifier, Name: a.Name}
}
