package services

import (
	"context"
	"errors"
)

// Send error taxonomy. The worker and error handler branch on these to
// decide between marking one item failed, retiring a profile, and
// pausing the whole campaign.
var (
	// ErrInvalidRecipient means the contact is unreachable on the
	// attempted channel. Contact-level, the profile stays in rotation.
	ErrInvalidRecipient = errors.New("recipient invalid on channel")

	// ErrProfileUnavailable means the sending profile is logged out,
	// banned or otherwise unable to send. Profile-level.
	ErrProfileUnavailable = errors.New("profile unavailable")

	// ErrRateLimited means the channel is throttling the profile.
	// Profile-level, but transient.
	ErrRateLimited = errors.New("profile rate limited")

	// ErrAutomationDown means the automation backend itself is
	// unreachable. Campaign-level, nobody can send.
	ErrAutomationDown = errors.New("automation backend unavailable")
)

// SendRequest is one delivery attempt handed to the automation backend
type SendRequest struct {
	ProfileID string
	Channel   string
	Phone     string
	Message   string

	SimulateTyping bool
	TypingDelayMs  int
}

// Messenger delivers a single message through a browser profile
type Messenger interface {
	Send(ctx context.Context, req SendRequest) error
}

// ProfileLauncher manages the browser profile lifecycle on the
// automation backend
type ProfileLauncher interface {
	Launch(ctx context.Context, profileID string) error
	Shutdown(ctx context.Context, profileID string) error
}
