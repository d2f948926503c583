package repository

import (
	"context"
	"errors"

	"virosync/internal/models"

	"gorm.io/gorm"
)

type GenBankFileRepository interface {
	Create(ctx context.Context, file *models.GenBankFile) error
	FindByVersion(ctx context.Context, version string) (*models.GenBankFile, error)
	GetByAccession(ctx context.Context, accession string) ([]models.GenBankFile, error)
	GetPaginated(ctx context.Context, page, limit int) ([]models.GenBankFile, error)
	Count(ctx context.Context) (int64, error)
	CountFeatures(ctx context.Context) (int64, error)
}

type genBankFileRepository struct {
	db *gorm.DB
}

func NewGenBankFileRepository(db *gorm.DB) GenBankFileRepository {
	return &genBankFileRepository{db: db}
}

// Create inserts the file row together with its owned features as one atomic
// unit. A failure mid-insert leaves no partially written record.
func (r *genBankFileRepository) Create(ctx context.Context, file *models.GenBankFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(file).Error
	})
}

// FindByVersion is the dedup pre-check: it returns (nil, nil) when no row
// exists for the version, so callers can treat presence as already-synced.
func (r *genBankFileRepository) FindByVersion(ctx context.Context, version string) (*models.GenBankFile, error) {
	var file models.GenBankFile
	err := r.db.WithContext(ctx).First(&file, "version = ?", version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *genBankFileRepository) GetByAccession(ctx context.Context, accession string) ([]models.GenBankFile, error) {
	var files []models.GenBankFile
	err := r.db.WithContext(ctx).
		Where("accession = ?", accession).
		Order("version DESC").
		Find(&files).
		Error
	return files, err
}

func (r *genBankFileRepository) GetPaginated(ctx context.Context, page, limit int) ([]models.GenBankFile, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	var files []models.GenBankFile
	err := r.db.WithContext(ctx).
		Order("date_downloaded DESC").
		Offset(offset).
		Limit(limit).
		Find(&files).
		Error
	return files, err
}

func (r *genBankFileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GenBankFile{}).
		Count(&count).
		Error
	return count, err
}

func (r *genBankFileRepository) CountFeatures(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Feature{}).
		Count(&count).
		Error
	return count, err
}
