package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetByID retrieves a campaign by ID with its assigned profiles
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Preload("Profiles").First(&campaign, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// Update saves all campaign fields
func (r *CampaignRepository) Update(campaign *models.Campaign) error {
	return r.db.Save(campaign).Error
}

// ListByStatus retrieves non-archived campaigns in any of the given statuses
func (r *CampaignRepository) ListByStatus(statuses ...string) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := r.db.Where("status IN ? AND archived_at IS NULL", statuses).
		Preload("Profiles").
		Find(&campaigns).Error
	return campaigns, err
}

// ListDue retrieves scheduled campaigns whose scheduled_at has passed
func (r *CampaignRepository) ListDue(now time.Time) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := r.db.Where("status = ? AND archived_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= ?",
		models.CampaignStatusScheduled, now).
		Preload("Profiles").
		Find(&campaigns).Error
	return campaigns, err
}

// IncrementCounters atomically bumps the aggregate counters. Multiple
// workers update the same campaign concurrently, so the increments go
// through SQL expressions rather than read-modify-write.
func (r *CampaignRepository) IncrementCounters(id string, processed, successful, failed, skipped int) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_contacts":  gorm.Expr("processed_contacts + ?", processed),
			"successful_contacts": gorm.Expr("successful_contacts + ?", successful),
			"failed_contacts":     gorm.Expr("failed_contacts + ?", failed),
			"skipped_contacts":    gorm.Expr("skipped_contacts + ?", skipped),
		}).Error
}

// ResetCounters zeroes the progress counters and sets the new total,
// used when a fresh queue is materialized
func (r *CampaignRepository) ResetCounters(id string, total int) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_contacts":      total,
			"processed_contacts":  0,
			"successful_contacts": 0,
			"failed_contacts":     0,
			"skipped_contacts":    0,
		}).Error
}

// Archive stamps archived_at on a terminal campaign
func (r *CampaignRepository) Archive(id string, at time.Time) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", id).
		Update("archived_at", at).Error
}
