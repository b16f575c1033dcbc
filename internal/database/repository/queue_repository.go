package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// BulkCreate inserts queue items in batches
func (r *QueueRepository) BulkCreate(items []models.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.CreateInBatches(items, 500).Error
}

// DeleteByCampaign removes all queue items of a campaign, used when a
// terminal campaign is re-queued from scratch
func (r *QueueRepository) DeleteByCampaign(campaignID string) error {
	return r.db.Where("campaign_id = ?", campaignID).Delete(&models.QueueItem{}).Error
}

// FetchPending returns the oldest pending items of one profile partition
func (r *QueueRepository) FetchPending(campaignID, profileID string, limit int) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := r.db.Where("campaign_id = ? AND profile_id = ? AND status = ?",
		campaignID, profileID, models.QueueItemPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// MarkProcessing claims a pending item. The status guard makes the claim
// idempotent against recovery sweeps.
func (r *QueueRepository) MarkProcessing(itemID string) error {
	return r.db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", itemID, models.QueueItemPending).
		Update("status", models.QueueItemProcessing).Error
}

// MarkResult records the terminal outcome of one item
func (r *QueueRepository) MarkResult(itemID, status, channel, errorMessage string, retryCount int, sentAt *time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"retry_count":   retryCount,
	}
	if channel != "" {
		updates["channel"] = channel
	}
	if sentAt != nil {
		updates["sent_at"] = sentAt
	}
	return r.db.Model(&models.QueueItem{}).Where("id = ?", itemID).Updates(updates).Error
}

// ResetProcessing returns in-flight items of a campaign to pending,
// used on pause and on recovery after a restart
func (r *QueueRepository) ResetProcessing(campaignID string) (int64, error) {
	result := r.db.Model(&models.QueueItem{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.QueueItemProcessing).
		Update("status", models.QueueItemPending)
	return result.RowsAffected, result.Error
}

// SkipProcessing marks in-flight items as skipped with a reason, used on
// cancellation. Returns the number of affected rows so the caller can
// adjust campaign counters exactly once.
func (r *QueueRepository) SkipProcessing(campaignID, reason string) (int64, error) {
	result := r.db.Model(&models.QueueItem{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.QueueItemProcessing).
		Updates(map[string]interface{}{
			"status":        models.QueueItemSkipped,
			"error_message": reason,
		})
	return result.RowsAffected, result.Error
}

// ResetStaleProcessing reclaims items stuck in processing longer than the
// timeout, across all campaigns. Covers workers that died without
// releasing their items.
func (r *QueueRepository) ResetStaleProcessing(olderThan time.Time) (int64, error) {
	result := r.db.Model(&models.QueueItem{}).
		Where("status = ? AND updated_at < ?", models.QueueItemProcessing, olderThan).
		Update("status", models.QueueItemPending)
	return result.RowsAffected, result.Error
}

// CountsByCampaign aggregates item statuses for one campaign
func (r *QueueRepository) CountsByCampaign(campaignID string) (models.QueueCounts, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	var counts models.QueueCounts
	err := r.db.Model(&models.QueueItem{}).
		Select("status, COUNT(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return counts, err
	}
	for _, row := range rows {
		switch row.Status {
		case models.QueueItemPending:
			counts.Pending = row.Count
		case models.QueueItemProcessing:
			counts.Processing = row.Count
		case models.QueueItemSent:
			counts.Sent = row.Count
		case models.QueueItemFailed:
			counts.Failed = row.Count
		case models.QueueItemSkipped:
			counts.Skipped = row.Count
		}
	}
	return counts, nil
}

// CountRemaining returns the number of pending and processing items, the
// completion check for a running campaign
func (r *QueueRepository) CountRemaining(campaignID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.QueueItem{}).
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]string{models.QueueItemPending, models.QueueItemProcessing}).
		Count(&count).Error
	return count, err
}

// PendingIDsByProfile returns pending item IDs of one profile partition,
// oldest first, used when redistributing work from a failed profile
func (r *QueueRepository) PendingIDsByProfile(campaignID, profileID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.QueueItem{}).
		Where("campaign_id = ? AND profile_id = ? AND status = ?",
			campaignID, profileID, models.QueueItemPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Reassign moves queue items to another profile partition
func (r *QueueRepository) Reassign(itemIDs []string, profileID string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return r.db.Model(&models.QueueItem{}).
		Where("id IN ?", itemIDs).
		Update("profile_id", profileID).Error
}

// DistributionByCampaign returns the per-profile status breakdown
func (r *QueueRepository) DistributionByCampaign(campaignID string) ([]models.ProfileDistribution, error) {
	var rows []struct {
		ProfileID string
		Status    string
		Count     int64
	}
	err := r.db.Model(&models.QueueItem{}).
		Select("profile_id, status, COUNT(*) as count").
		Where("campaign_id = ? AND profile_id IS NOT NULL", campaignID).
		Group("profile_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byProfile := make(map[string]*models.ProfileDistribution)
	var order []string
	for _, row := range rows {
		dist, ok := byProfile[row.ProfileID]
		if !ok {
			dist = &models.ProfileDistribution{ProfileID: row.ProfileID}
			byProfile[row.ProfileID] = dist
			order = append(order, row.ProfileID)
		}
		switch row.Status {
		case models.QueueItemPending:
			dist.Pending = row.Count
		case models.QueueItemProcessing:
			dist.Processing = row.Count
		case models.QueueItemSent:
			dist.Sent = row.Count
		case models.QueueItemFailed:
			dist.Failed = row.Count
		case models.QueueItemSkipped:
			dist.Skipped = row.Count
		}
	}

	result := make([]models.ProfileDistribution, 0, len(order))
	for _, id := range order {
		result = append(result, *byProfile[id])
	}
	return result, nil
}
