package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Queue item statuses. Transitions are strictly
// pending -> processing -> sent|failed|skipped; failed items are terminal
// (retry_count is informational, not a retry trigger).
const (
	QueueItemPending    = "pending"
	QueueItemProcessing = "processing"
	QueueItemSent       = "sent"
	QueueItemFailed     = "failed"
	QueueItemSkipped    = "skipped"
)

// QueueItem is one contact-send unit. At most one worker ever holds an item
// in processing: partitioning by profile_id is the concurrency control, not
// row locking.
type QueueItem struct {
	ID         string  `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string  `json:"campaign_id" gorm:"type:uuid;not null;index:idx_queue_campaign_profile_status,priority:1"`
	ContactID  string  `json:"contact_id" gorm:"type:uuid;not null"`
	Phone      string  `json:"phone" gorm:"type:varchar(32);not null"`
	ProfileID  *string `json:"profile_id" gorm:"type:uuid;index:idx_queue_campaign_profile_status,priority:2"`

	// Channel is nil for universal campaigns until resolved at send time.
	// The validity flags are snapshotted from the contact at queue-build
	// time so workers never re-read the contact row.
	Channel          *string `json:"channel" gorm:"type:varchar(20)"`
	WhatsappValidity int     `json:"whatsapp_validity" gorm:"default:0"`
	TelegramValidity int     `json:"telegram_validity" gorm:"default:0"`

	Status       string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_queue_campaign_profile_status,priority:3"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	SentAt       *time.Time `json:"sent_at"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Campaign Campaign `json:"-" gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
	Contact  Contact  `json:"-" gorm:"foreignKey:ContactID;references:ID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (q *QueueItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the QueueItem model
func (QueueItem) TableName() string {
	return "queue_items"
}

// QueueCounts aggregates item statuses for one campaign
type QueueCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
}

// Total returns the number of queue items across all statuses
func (c QueueCounts) Total() int64 {
	return c.Pending + c.Processing + c.Sent + c.Failed + c.Skipped
}

// ProfileDistribution is the per-profile breakdown used by monitoring and
// completion checks
type ProfileDistribution struct {
	ProfileID     string `json:"profile_id"`
	ProfileName   string `json:"profile_name"`
	AssignedCount int    `json:"assigned_count"`
	Pending       int64  `json:"pending"`
	Processing    int64  `json:"processing"`
	Sent          int64  `json:"sent"`
	Failed        int64  `json:"failed"`
	Skipped       int64  `json:"skipped"`
}
