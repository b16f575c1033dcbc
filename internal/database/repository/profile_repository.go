package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateStatus sets the profile status
func (r *ProfileRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&models.Profile{}).Where("id = ?", id).
		Update("status", status).Error
}

// TouchLastSeen stamps last_seen_at after a successful automation call
func (r *ProfileRepository) TouchLastSeen(id string, at time.Time) error {
	return r.db.Model(&models.Profile{}).Where("id = ?", id).
		Update("last_seen_at", at).Error
}
