package importer

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/model"
)

// AnimalResolver turns an external animal identifier into an animal. Callers
// may scope resolution, for example to the animals an operator can see.
type AnimalResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, identifier string) (*model.Animal, error)
}

// GormAnimalResolver matches identifiers case-insensitively across all animals.
type GormAnimalResolver struct{}

// Resolve implements AnimalResolver.
func (GormAnimalResolver) Resolve(ctx context.Context, tx *gorm.DB, identifier string) (*model.Animal, error) {
	var animals []model.Animal
	err := tx.WithContext(ctx).
		Where("UPPER(identifier) = ?", strings.ToUpper(strings.TrimSpace(identifier))).
		Limit(1).
		Find(&animals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve animal %q: %w", identifier, err)
	}
	if len(animals) == 0 {
		return nil, apperr.NotFound("animal %q", identifier)
	}
	return &animals[0], nil
}
