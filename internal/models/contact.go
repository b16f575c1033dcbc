package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact statuses
const (
	ContactStatusActive       = "active"
	ContactStatusBlocked      = "blocked"
	ContactStatusUnsubscribed = "unsubscribed"
)

// Channel validity flags. Zero (unknown) is treated as potentially
// reachable; only an explicit negative excludes the channel.
const (
	ValidityInvalid = -1
	ValidityUnknown = 0
	ValidityValid   = 1
)

// Contact represents one recipient with per-channel validity flags
type Contact struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	Phone  string `json:"phone" gorm:"type:varchar(32);not null;uniqueIndex"`
	Name   string `json:"name" gorm:"type:varchar(255)"`
	Status string `json:"status" gorm:"type:varchar(20);default:'active';index"`
	Region string `json:"region" gorm:"type:varchar(100);index"`

	WhatsappValidity int `json:"whatsapp_validity" gorm:"default:0"`
	TelegramValidity int `json:"telegram_validity" gorm:"default:0"`

	LastMessagedAt *time.Time `json:"last_messaged_at" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the Contact model
func (Contact) TableName() string {
	return "contacts"
}
