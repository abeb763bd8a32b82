// Package catalog holds the fixed set of collar operational states.
//
// A Catalog is built once at process start (Load) and injected into the
// components that mutate collars; it never reloads itself.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/model"
)

// State is a canonical collar state name.
type State string

const (
	Available  State = "available"
	Active     State = "active"
	LowBattery State = "low-battery"
	Defective  State = "defective"
)

// Canonical lists the four recognized states.
var Canonical = []State{Available, Active, LowBattery, Defective}

// ErrUnknownState is returned when a name or id is not part of the catalog.
var ErrUnknownState = errors.New("unknown collar state")

// Catalog resolves collar state names to ids and back.
type Catalog struct {
	byName map[State]model.CollarState
	byID   map[int64]model.CollarState
}

// New builds a catalog from the given rows. Rows whose names are not canonical
// are ignored; missing canonical rows are not an error here (see Load).
func New(rows []model.CollarState) *Catalog {
	c := &Catalog{
		byName: make(map[State]model.CollarState, len(rows)),
		byID:   make(map[int64]model.CollarState, len(rows)),
	}
	for _, row := range rows {
		name, ok := canonicalName(row.Name)
		if !ok {
			continue
		}
		row.Name = string(name)
		c.byName[name] = row
		c.byID[row.ID] = row
	}
	return c
}

// Load reads the catalog table and fails with a configuration error when any
// canonical state is missing.
func Load(ctx context.Context, db *gorm.DB) (*Catalog, error) {
	var rows []model.CollarState
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load collar states: %w", err)
	}
	c := New(rows)
	if missing := c.Missing(); len(missing) > 0 {
		return nil, apperr.Configuration("collar states not configured: %v", missing)
	}
	return c, nil
}

// ResolveID returns the id of the named state. Lookup is case-insensitive.
func (c *Catalog) ResolveID(name string) (int64, error) {
	state, ok := canonicalName(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	row, ok := c.byName[state]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return row.ID, nil
}

// ResolveName returns the canonical name of the state with the given id.
func (c *Catalog) ResolveName(id int64) (State, error) {
	row, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrUnknownState, id)
	}
	return State(row.Name), nil
}

// MustHave resolves a canonical state needed by a lifecycle transition. A miss
// means the deployment is broken and is reported as a configuration error.
func (c *Catalog) MustHave(state State) (int64, error) {
	id, err := c.ResolveID(string(state))
	if err != nil {
		return 0, apperr.Configuration("collar state %q is not configured", state)
	}
	return id, nil
}

// IsSticky reports whether the state id belongs to a state that assignment
// bookkeeping must not overwrite.
func (c *Catalog) IsSticky(id int64) bool {
	name, err := c.ResolveName(id)
	if err != nil {
		return false
	}
	return name == LowBattery || name == Defective
}

// States returns the catalog rows ordered by id.
func (c *Catalog) States() []model.CollarState {
	out := make([]model.CollarState, 0, len(c.byID))
	for _, row := range c.byID {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Missing returns the canonical states absent from the catalog.
func (c *Catalog) Missing() []State {
	var missing []State
	for _, state := range Canonical {
		if _, ok := c.byName[state]; !ok {
			missing = append(missing, state)
		}
	}
	return missing
}

func canonicalName(name string) (State, bool) {
	candidate := State(strings.ToLower(strings.TrimSpace(name)))
	for _, state := range Canonical {
		if candidate == state {
			return state, true
		}
	}
	return "", false
}
