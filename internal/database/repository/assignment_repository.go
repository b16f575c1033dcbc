package repository

import (
	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ReplaceForCampaign drops the previous assignment rows and inserts the
// new distribution in one transaction
func (r *AssignmentRepository) ReplaceForCampaign(campaignID string, assignments []models.ProfileAssignment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignID).
			Delete(&models.ProfileAssignment{}).Error; err != nil {
			return err
		}
		if len(assignments) == 0 {
			return nil
		}
		return tx.Create(&assignments).Error
	})
}

// ListByCampaign retrieves the assignment rows of a campaign with profiles
func (r *AssignmentRepository) ListByCampaign(campaignID string) ([]models.ProfileAssignment, error) {
	var assignments []models.ProfileAssignment
	err := r.db.Where("campaign_id = ?", campaignID).
		Preload("Profile").
		Find(&assignments).Error
	return assignments, err
}

// IncrementCounters atomically bumps the per-profile counters
func (r *AssignmentRepository) IncrementCounters(campaignID, profileID string, processed, success, failed int) error {
	return r.db.Model(&models.ProfileAssignment{}).
		Where("campaign_id = ? AND profile_id = ?", campaignID, profileID).
		Updates(map[string]interface{}{
			"processed_count": gorm.Expr("processed_count + ?", processed),
			"success_count":   gorm.Expr("success_count + ?", success),
			"failed_count":    gorm.Expr("failed_count + ?", failed),
		}).Error
}

// AddAssigned adjusts the assigned count after rebalancing
func (r *AssignmentRepository) AddAssigned(campaignID, profileID string, delta int) error {
	return r.db.Model(&models.ProfileAssignment{}).
		Where("campaign_id = ? AND profile_id = ?", campaignID, profileID).
		Update("assigned_count", gorm.Expr("assigned_count + ?", delta)).Error
}

// UpdateStatus sets the assignment status, recording the last error when
// the profile is taken out of rotation
func (r *AssignmentRepository) UpdateStatus(campaignID, profileID, status, lastError string) error {
	updates := map[string]interface{}{"status": status}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.Model(&models.ProfileAssignment{}).
		Where("campaign_id = ? AND profile_id = ?", campaignID, profileID).
		Updates(updates).Error
}
