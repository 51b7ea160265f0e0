package repository

import (
	"damagedetect/internal/models"
)

// InferenceRepository defines the interface for inference history operations.
type InferenceRepository interface {
	// Create operations
	Insert(inf *models.Inference) error

	// Read operations
	GetByID(id string) (*models.Inference, error)
	GetAll(filter *models.InferenceFilter) ([]models.Inference, error)
	GetTotalCount(filter *models.InferenceFilter) (int, error)
	GetAllClassNames() ([]string, error)

	// Delete operations
	Delete(id string) error
	DeleteAll() error
}
