package models

import (
	"time"
)

// Campaign statuses. Lifecycle:
// draft -> queued -> running <-> paused -> completed|cancelled|error,
// plus scheduled -> queued via the scheduler. Terminal statuses require a
// fresh queue step before the campaign can run again.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusQueued    = "queued"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
	CampaignStatusError     = "error"
)

// Messenger channels. A campaign either pins an explicit channel or uses
// "universal" and lets the delivery policy resolve one at send time.
const (
	ChannelWhatsapp  = "whatsapp"
	ChannelTelegram  = "telegram"
	ChannelUniversal = "universal"
)

// Delivery-selection policies for universal campaigns
const (
	ChannelPolicyBoth          = "both"
	ChannelPolicyWhatsappFirst = "whatsapp_first"
	ChannelPolicyTelegramFirst = "telegram_first"
)

// PacingConfig controls how a profile worker paces its sends
type PacingConfig struct {
	MessageDelayMinMs int `json:"message_delay_min_ms"`
	MessageDelayMaxMs int `json:"message_delay_max_ms"`
	ContactDelayMinMs int `json:"contact_delay_min_ms"`
	ContactDelayMaxMs int `json:"contact_delay_max_ms"`
	TypingDelayMinMs  int `json:"typing_delay_min_ms"`
	TypingDelayMaxMs  int `json:"typing_delay_max_ms"`

	SimulateTyping bool `json:"simulate_typing"`

	// PauseMode 1 applies the contact delay after every sent message.
	// PauseMode 2 applies it only when the next message targets a
	// different contact than the previous one.
	PauseMode int `json:"pause_mode"`

	ChunkSize int `json:"chunk_size"`

	// Warmup stretches all delays by WarmupFactor for the first
	// WarmupMessages sends of each worker session.
	WarmupEnabled  bool    `json:"warmup_enabled"`
	WarmupMessages int     `json:"warmup_messages"`
	WarmupFactor   float64 `json:"warmup_factor"`

	AutoResume bool `json:"auto_resume"`
}

// Normalized returns the config with defaults filled in
func (p PacingConfig) Normalized() PacingConfig {
	if p.PauseMode != 2 {
		p.PauseMode = 1
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 10
	}
	if p.MessageDelayMaxMs < p.MessageDelayMinMs {
		p.MessageDelayMaxMs = p.MessageDelayMinMs
	}
	if p.ContactDelayMaxMs < p.ContactDelayMinMs {
		p.ContactDelayMaxMs = p.ContactDelayMinMs
	}
	if p.TypingDelayMaxMs < p.TypingDelayMinMs {
		p.TypingDelayMaxMs = p.TypingDelayMinMs
	}
	if p.WarmupEnabled && p.WarmupFactor < 1 {
		p.WarmupFactor = 2
	}
	return p
}

// ScheduleConfig restricts when a campaign is allowed to send. Each
// restriction is evaluated independently in the configured timezone; with
// both disabled the campaign runs continuously.
type ScheduleConfig struct {
	WorkHoursEnabled bool `json:"work_hours_enabled"`
	WorkHourStart    int  `json:"work_hour_start"` // inclusive, 0-23
	WorkHourEnd      int  `json:"work_hour_end"`   // exclusive, 0-23

	WorkDaysEnabled bool  `json:"work_days_enabled"`
	WorkDays        []int `json:"work_days"` // time.Weekday values, 0=Sunday

	Timezone   string `json:"timezone"`
	Recurrence string `json:"recurrence"` // once, daily, weekly
}

// ContactFilter is the selection spec snapshotted on the campaign at
// queue-build time
type ContactFilter struct {
	Statuses      []string `json:"statuses"`
	Regions       []string `json:"regions"`
	DedupeByPhone bool     `json:"dedupe_by_phone"`
	CooldownDays  int      `json:"cooldown_days"`
	MaxContacts   int      `json:"max_contacts"`
	Shuffle       bool     `json:"shuffle"`
}

// Campaign represents one broadcast job distributed across a pool of
// sender profiles
type Campaign struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name   string `json:"name" gorm:"type:varchar(255);not null"`
	Status string `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`

	Channel       string `json:"channel" gorm:"type:varchar(20);default:'universal'"`
	ChannelPolicy string `json:"channel_policy" gorm:"type:varchar(30);default:'both'"`

	// MessageText is the already-rendered body handed to the messenger.
	// Templating happens upstream.
	MessageText string `json:"message_text" gorm:"type:text"`

	// Aggregate counters. Invariant: processed = successful + failed +
	// skipped, and processed <= total.
	TotalContacts      int `json:"total_contacts" gorm:"default:0"`
	ProcessedContacts  int `json:"processed_contacts" gorm:"default:0"`
	SuccessfulContacts int `json:"successful_contacts" gorm:"default:0"`
	FailedContacts     int `json:"failed_contacts" gorm:"default:0"`
	SkippedContacts    int `json:"skipped_contacts" gorm:"default:0"`

	ScheduledAt *time.Time `json:"scheduled_at" gorm:"index"`
	StartedAt   *time.Time `json:"started_at"`
	PausedAt    *time.Time `json:"paused_at"`
	CompletedAt *time.Time `json:"completed_at"`
	ArchivedAt  *time.Time `json:"archived_at" gorm:"index"`

	// AutoPaused marks a pause initiated by the scheduler or the error
	// handler, as opposed to an operator. Only auto-paused campaigns are
	// auto-resumed when their window re-opens.
	AutoPaused bool `json:"auto_paused" gorm:"default:false"`

	Pacing   PacingConfig   `json:"pacing" gorm:"type:jsonb;serializer:json"`
	Schedule ScheduleConfig `json:"schedule" gorm:"type:jsonb;serializer:json"`
	Filter   ContactFilter  `json:"filter" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Profiles []Profile `json:"profiles,omitempty" gorm:"many2many:campaign_profiles;"`
}

// TableName specifies the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// IsTerminal reports whether the status requires a fresh queue step before
// the campaign can run again
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusCompleted ||
		c.Status == CampaignStatusCancelled ||
		c.Status == CampaignStatusError
}

var campaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusQueued},
	CampaignStatusScheduled: {CampaignStatusQueued, CampaignStatusDraft, CampaignStatusCancelled},
	CampaignStatusQueued:    {CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusRunning:   {CampaignStatusRunning, CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled, CampaignStatusError},
	CampaignStatusPaused:    {CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusCompleted: {CampaignStatusQueued, CampaignStatusScheduled},
	CampaignStatusCancelled: {CampaignStatusQueued, CampaignStatusScheduled},
	CampaignStatusError:     {CampaignStatusQueued, CampaignStatusScheduled},
}

// CanTransition reports whether the status state machine allows from -> to
func CanTransition(from, to string) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
