package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// ListEligible retrieves contacts matching a campaign's audience filter.
// Channel validity excludes only contacts known unreachable on every
// channel the campaign may use; unknown validity passes through.
func (r *ContactRepository) ListEligible(filter models.ContactFilter, channel string, now time.Time) ([]models.Contact, error) {
	query := r.db.Model(&models.Contact{})

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	} else {
		query = query.Where("status = ?", models.ContactStatusActive)
	}
	if len(filter.Regions) > 0 {
		query = query.Where("region IN ?", filter.Regions)
	}
	if filter.CooldownDays > 0 {
		cutoff := now.AddDate(0, 0, -filter.CooldownDays)
		query = query.Where("last_messaged_at IS NULL OR last_messaged_at < ?", cutoff)
	}

	switch channel {
	case models.ChannelWhatsapp:
		query = query.Where("whatsapp_validity >= ?", models.ValidityUnknown)
	case models.ChannelTelegram:
		query = query.Where("telegram_validity >= ?", models.ValidityUnknown)
	default:
		query = query.Where("whatsapp_validity >= ? OR telegram_validity >= ?",
			models.ValidityUnknown, models.ValidityUnknown)
	}

	var contacts []models.Contact
	err := query.Order("created_at ASC").Find(&contacts).Error
	return contacts, err
}

// TouchLastMessaged stamps last_messaged_at after a successful delivery
func (r *ContactRepository) TouchLastMessaged(contactID string, at time.Time) error {
	return r.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Update("last_messaged_at", at).Error
}

// UpdateValidity records a channel validity result learned during sending
func (r *ContactRepository) UpdateValidity(contactID, channel string, validity int) error {
	column := "whatsapp_validity"
	if channel == models.ChannelTelegram {
		column = "telegram_validity"
	}
	return r.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Update(column, validity).Error
}
