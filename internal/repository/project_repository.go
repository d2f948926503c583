package repository

import (
	"context"
	"errors"

	"virosync/internal/models"

	"gorm.io/gorm"
)

type ProjectRepository interface {
	Ensure(ctx context.Context, project *models.Project) (*models.Project, error)
	GetByOrganism(ctx context.Context, organism string) (*models.Project, error)
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Ensure creates the project for an organism exactly once. An existing row is
// returned as-is; provisioning never mutates it.
func (r *projectRepository) Ensure(ctx context.Context, project *models.Project) (*models.Project, error) {
	var existing models.Project
	err := r.db.WithContext(ctx).First(&existing, "organism = ?", project.Organism).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
			return nil, err
		}
		return project, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *projectRepository) GetByOrganism(ctx context.Context, organism string) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, "organism = ?", organism).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}
