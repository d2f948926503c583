package repository

import (
	"context"
	"errors"

	"virosync/internal/models"

	"gorm.io/gorm"
)

type IsolateRepository interface {
	Upsert(ctx context.Context, isolate *models.Isolate) error
	GetByAccession(ctx context.Context, accession string) (*models.Isolate, error)
	GetPaginated(ctx context.Context, page, limit int) ([]models.Isolate, error)
	GetAll(ctx context.Context) ([]models.Isolate, error)
	Count(ctx context.Context) (int64, error)
}

type isolateRepository struct {
	db *gorm.DB
}

func NewIsolateRepository(db *gorm.DB) IsolateRepository {
	return &isolateRepository{db: db}
}

// Upsert creates the isolate on first sight of its accession. On later
// versions of the same accession the specimen fields are refreshed and the
// release date is updated only when the new one is non-null; the accession
// key and UID never change.
func (r *isolateRepository) Upsert(ctx context.Context, isolate *models.Isolate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Isolate
		err := tx.First(&existing, "accession = ?", isolate.Accession).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(isolate).Error
		}
		if err != nil {
			return err
		}

		existing.DateCollected = isolate.DateCollected
		existing.Country = isolate.Country
		existing.Host = isolate.Host
		if isolate.DateReleased != nil {
			existing.DateReleased = isolate.DateReleased
		}
		if isolate.Organism != "" {
			existing.Organism = isolate.Organism
		}
		return tx.Save(&existing).Error
	})
}

func (r *isolateRepository) GetByAccession(ctx context.Context, accession string) (*models.Isolate, error) {
	var isolate models.Isolate
	err := r.db.WithContext(ctx).First(&isolate, "accession = ?", accession).Error
	if err != nil {
		return nil, err
	}
	return &isolate, nil
}

func (r *isolateRepository) GetPaginated(ctx context.Context, page, limit int) ([]models.Isolate, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	var isolates []models.Isolate
	err := r.db.WithContext(ctx).
		Order("accession").
		Offset(offset).
		Limit(limit).
		Find(&isolates).
		Error
	return isolates, err
}

func (r *isolateRepository) GetAll(ctx context.Context) ([]models.Isolate, error) {
	var isolates []models.Isolate
	err := r.db.WithContext(ctx).
		Order("accession").
		Find(&isolates).
		Error
	return isolates, err
}

func (r *isolateRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Isolate{}).
		Count(&count).
		Error
	return count, err
}
