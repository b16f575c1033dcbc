package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Log levels
const (
	LogLevelInfo     = "info"
	LogLevelWarning  = "warning"
	LogLevelError    = "error"
	LogLevelCritical = "critical"
)

// CampaignLog is an append-only audit record for state transitions and
// failures. Rows are never mutated; old rows are removed only by the
// scheduled retention cleanup.
type CampaignLog struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string `json:"campaign_id" gorm:"type:uuid;not null;index"`
	ProfileID  string `json:"profile_id,omitempty" gorm:"type:uuid;index"`

	Level    string `json:"level" gorm:"type:varchar(20);not null;index"`
	Action   string `json:"action" gorm:"type:varchar(50);not null;index"`
	Message  string `json:"message" gorm:"type:text;not null"`
	Metadata JSON   `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (l *CampaignLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the CampaignLog model
func (CampaignLog) TableName() string {
	return "campaign_logs"
}
