package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile statuses
const (
	ProfileStatusActive   = "active"
	ProfileStatusFailed   = "failed"
	ProfileStatusDisabled = "disabled"
)

// Profile represents one sending identity backed by an automation-driven
// browser profile
type Profile struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	Name   string `json:"name" gorm:"type:varchar(255);not null"`
	Status string `json:"status" gorm:"type:varchar(20);default:'active';index"`

	LastSeenAt *time.Time `json:"last_seen_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// Assignment statuses
const (
	AssignmentStatusActive   = "active"
	AssignmentStatusFailed   = "failed"
	AssignmentStatusFinished = "finished"
)

// ProfileAssignment links a campaign to one sending profile and carries the
// per-profile counters. One row per (campaign, profile) pair.
type ProfileAssignment struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string `json:"campaign_id" gorm:"type:uuid;not null;uniqueIndex:idx_assignment_campaign_profile"`
	ProfileID  string `json:"profile_id" gorm:"type:uuid;not null;uniqueIndex:idx_assignment_campaign_profile"`

	AssignedCount  int `json:"assigned_count" gorm:"default:0"`
	ProcessedCount int `json:"processed_count" gorm:"default:0"`
	SuccessCount   int `json:"success_count" gorm:"default:0"`
	FailedCount    int `json:"failed_count" gorm:"default:0"`

	Status    string `json:"status" gorm:"type:varchar(20);default:'active';index"`
	LastError string `json:"last_error" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Campaign Campaign `json:"-" gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
	Profile  Profile  `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (a *ProfileAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the ProfileAssignment model
func (ProfileAssignment) TableName() string {
	return "profile_assignments"
}
