package services

import (
	"time"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// Store interfaces consumed by the execution services. The gorm
// repositories satisfy them; tests substitute in-memory fakes.

type CampaignStore interface {
	GetByID(id string) (*models.Campaign, error)
	Update(campaign *models.Campaign) error
	ListByStatus(statuses ...string) ([]*models.Campaign, error)
	ListDue(now time.Time) ([]*models.Campaign, error)
	IncrementCounters(id string, processed, successful, failed, skipped int) error
	ResetCounters(id string, total int) error
	Archive(id string, at time.Time) error
}

type QueueStore interface {
	BulkCreate(items []models.QueueItem) error
	DeleteByCampaign(campaignID string) error
	FetchPending(campaignID, profileID string, limit int) ([]models.QueueItem, error)
	MarkProcessing(itemID string) error
	MarkResult(itemID, status, channel, errorMessage string, retryCount int, sentAt *time.Time) error
	ResetProcessing(campaignID string) (int64, error)
	SkipProcessing(campaignID, reason string) (int64, error)
	ResetStaleProcessing(olderThan time.Time) (int64, error)
	CountsByCampaign(campaignID string) (models.QueueCounts, error)
	CountRemaining(campaignID string) (int64, error)
	PendingIDsByProfile(campaignID, profileID string) ([]string, error)
	Reassign(itemIDs []string, profileID string) error
	DistributionByCampaign(campaignID string) ([]models.ProfileDistribution, error)
}

type ContactStore interface {
	ListEligible(filter models.ContactFilter, channel string, now time.Time) ([]models.Contact, error)
	TouchLastMessaged(contactID string, at time.Time) error
	UpdateValidity(contactID, channel string, validity int) error
}

type AssignmentStore interface {
	ReplaceForCampaign(campaignID string, assignments []models.ProfileAssignment) error
	ListByCampaign(campaignID string) ([]models.ProfileAssignment, error)
	IncrementCounters(campaignID, profileID string, processed, success, failed int) error
	AddAssigned(campaignID, profileID string, delta int) error
	UpdateStatus(campaignID, profileID, status, lastError string) error
}

type ProfileStore interface {
	GetByID(id string) (*models.Profile, error)
	UpdateStatus(id, status string) error
	TouchLastSeen(id string, at time.Time) error
}

type LogStore interface {
	Create(log *models.CampaignLog) error
	ListByCampaign(campaignID string, limit, offset int) ([]models.CampaignLog, int64, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// EventSink receives campaign events for fan-out to subscribers
type EventSink interface {
	PublishStatus(event models.StatusEvent)
	PublishProgress(event models.ProgressEvent)
	PublishMessage(event models.MessageEvent)
	PublishError(event models.ErrorEvent)
	PublishCompletion(event models.CompletionEvent)
}
