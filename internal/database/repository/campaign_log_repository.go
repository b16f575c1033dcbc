package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type CampaignLogRepository struct {
	db *gorm.DB
}

func NewCampaignLogRepository(db *gorm.DB) *CampaignLogRepository {
	return &CampaignLogRepository{db: db}
}

// Create appends one log record
func (r *CampaignLogRepository) Create(log *models.CampaignLog) error {
	return r.db.Create(log).Error
}

// ListByCampaign retrieves log records newest first
func (r *CampaignLogRepository) ListByCampaign(campaignID string, limit, offset int) ([]models.CampaignLog, int64, error) {
	var logs []models.CampaignLog
	var total int64

	query := r.db.Model(&models.CampaignLog{}).Where("campaign_id = ?", campaignID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}

// DeleteOlderThan removes log records past the retention window
func (r *CampaignLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.CampaignLog{})
	return result.RowsAffected, result.Error
}
