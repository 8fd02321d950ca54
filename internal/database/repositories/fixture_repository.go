package repositories

import (
	"context"
	"errors"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// FixtureRepository handles patch data access.
type FixtureRepository struct {
	db *gorm.DB
}

// NewFixtureRepository creates a new FixtureRepository.
func NewFixtureRepository(db *gorm.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// FindAll returns the patch in address order.
func (r *FixtureRepository) FindAll(ctx context.Context) ([]models.PatchFixture, error) {
	var fixtures []models.PatchFixture
	result := r.db.WithContext(ctx).
		Order("address ASC, name ASC").
		Find(&fixtures)
	return fixtures, result.Error
}

// FindByID returns a fixture by ID.
func (r *FixtureRepository) FindByID(ctx context.Context, id string) (*models.PatchFixture, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByName returns a fixture by name.
func (r *FixtureRepository) FindByName(ctx context.Context, name string) (*models.PatchFixture, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *FixtureRepository) first(ctx context.Context, query string, arg string) (*models.PatchFixture, error) {
	var fixture models.PatchFixture
	result := r.db.WithContext(ctx).First(&fixture, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &fixture, nil
}

// Create creates a new patch entry.
func (r *FixtureRepository) Create(ctx context.Context, fixture *models.PatchFixture) error {
	if fixture.ID == "" {
		fixture.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(fixture).Error
}

// Update updates an existing patch entry.
func (r *FixtureRepository) Update(ctx context.Context, fixture *models.PatchFixture) error {
	return r.db.WithContext(ctx).Save(fixture).Error
}

// Delete deletes a patch entry by ID.
func (r *FixtureRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.PatchFixture{}, "id = ?", id).Error
}

// Count returns the number of patched fixtures.
func (r *FixtureRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PatchFixture{}).Count(&count).Error
	return count, err
}

// ReplaceAll swaps the whole patch for fixtures in one transaction.
func (r *FixtureRepository) ReplaceAll(ctx context.Context, fixtures []models.PatchFixture) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.PatchFixture{}).Error; err != nil {
			return err
		}
		for i := range fixtures {
			if fixtures[i].ID == "" {
				fixtures[i].ID = cuid.New()
			}
		}
		if len(fixtures) == 0 {
			return nil
		}
		return tx.Create(&fixtures).Error
	})
}
