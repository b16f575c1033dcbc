package services

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// Pauser is the slice of the executor the error handler needs. Set after
// construction because the executor also holds the handler.
type Pauser interface {
	SafePause(campaignID, reason string)
	StopProfileWorker(campaignID, profileID string)
}

// Rebalancer redistributes the work of a retired profile
type Rebalancer interface {
	Rebalance(campaignID, failedProfileID string) (int, error)
}

// ErrorHandler classifies send failures and escalates. Delivery errors
// are recorded only; profile errors retire the profile and rebalance;
// network and critical errors pause the owning campaign.
type ErrorHandler struct {
	assignments AssignmentStore
	profiles    ProfileStore
	contacts    ContactStore
	balancer    Rebalancer
	events      EventSink
	audit       *AuditLogger
	pauser      Pauser
}

func NewErrorHandler(assignments AssignmentStore, profiles ProfileStore, contacts ContactStore, balancer Rebalancer, events EventSink, audit *AuditLogger) *ErrorHandler {
	return &ErrorHandler{
		assignments: assignments,
		profiles:    profiles,
		contacts:    contacts,
		balancer:    balancer,
		events:      events,
		audit:       audit,
	}
}

// SetPauser wires the executor in after construction
func (h *ErrorHandler) SetPauser(pauser Pauser) {
	h.pauser = pauser
}

// HandleFailure routes one failed item outcome
func (h *ErrorHandler) HandleFailure(result models.ItemResult) {
	severity := classifyError(result.Error)

	switch severity {
	case models.SeverityDelivery:
		h.handleDelivery(result)
	case models.SeverityProfile:
		h.handleProfile(result)
	case models.SeverityNetwork:
		h.pauseCampaign(result, models.SeverityNetwork,
			fmt.Sprintf("automation backend unreachable: %s", result.Error))
	case models.SeverityCritical:
		sentry.CaptureException(fmt.Errorf("critical send failure in campaign %s: %s", result.CampaignID, result.Error))
		h.pauseCampaign(result, models.SeverityCritical,
			fmt.Sprintf("critical failure: %s", result.Error))
	}
}

// HandleCritical escalates a failure outside the per-item path, e.g. a
// recovery or scheduler action that could not complete
func (h *ErrorHandler) HandleCritical(campaignID string, err error) {
	sentry.CaptureException(fmt.Errorf("critical failure in campaign %s: %w", campaignID, err))
	h.escalate(campaignID, "", models.SeverityCritical, err.Error())
	if h.pauser != nil {
		h.pauser.SafePause(campaignID, fmt.Sprintf("critical failure: %v", err))
	}
}

// handleDelivery records a contact-level failure without touching the
// profile or the campaign. Known-invalid recipients are remembered on
// the contact.
func (h *ErrorHandler) handleDelivery(result models.ItemResult) {
	if strings.Contains(result.Error, ErrInvalidRecipient.Error()) && result.Channel != "" {
		if err := h.contacts.UpdateValidity(result.ContactID, result.Channel, models.ValidityInvalid); err != nil {
			logrus.Warnf("[Errors] Failed to record validity for contact %s: %v", result.ContactID, err)
		}
	}
	h.escalate(result.CampaignID, result.ProfileID, models.SeverityDelivery,
		fmt.Sprintf("delivery to %s failed: %s", result.Phone, result.Error))
}

// handleProfile retires the failing profile and moves its remaining work
// to the survivors. With no survivors left the campaign pauses instead.
func (h *ErrorHandler) handleProfile(result models.ItemResult) {
	campaignID, profileID := result.CampaignID, result.ProfileID

	if !h.retireAssignment(campaignID, profileID, result.Error) {
		// Already retired by an earlier failure of the same profile
		return
	}

	h.escalate(campaignID, profileID, models.SeverityProfile,
		fmt.Sprintf("profile retired: %s", result.Error))

	if h.pauser != nil {
		h.pauser.StopProfileWorker(campaignID, profileID)
	}
	if err := h.profiles.UpdateStatus(profileID, models.ProfileStatusFailed); err != nil {
		logrus.Warnf("[Errors] Failed to mark profile %s failed: %v", profileID, err)
	}

	moved, err := h.balancer.Rebalance(campaignID, profileID)
	if err != nil {
		logrus.Errorf("[Errors] Rebalance of campaign %s failed: %v", campaignID, err)
		h.pauseCampaign(result, models.SeverityProfile,
			fmt.Sprintf("profile %s failed and work could not be redistributed: %v", profileID, err))
		return
	}
	logrus.Infof("[Errors] Campaign %s: profile %s retired, %d items redistributed", campaignID, profileID, moved)
}

// retireAssignment flips the assignment to failed, reporting whether this
// call did the flip
func (h *ErrorHandler) retireAssignment(campaignID, profileID, lastError string) bool {
	assignments, err := h.assignments.ListByCampaign(campaignID)
	if err != nil {
		logrus.Errorf("[Errors] Failed to list assignments for campaign %s: %v", campaignID, err)
		return true
	}
	for _, a := range assignments {
		if a.ProfileID != profileID {
			continue
		}
		if a.Status != models.AssignmentStatusActive {
			return false
		}
		if err := h.assignments.UpdateStatus(campaignID, profileID, models.AssignmentStatusFailed, lastError); err != nil {
			logrus.Errorf("[Errors] Failed to retire assignment for profile %s: %v", profileID, err)
		}
		return true
	}
	return true
}

// pauseCampaign escalates and requests a best-effort safe pause
func (h *ErrorHandler) pauseCampaign(result models.ItemResult, severity, message string) {
	h.escalate(result.CampaignID, result.ProfileID, severity, message)
	if h.pauser != nil {
		h.pauser.SafePause(result.CampaignID, message)
	}
}

// escalate logs a structured entry and pushes the live error event.
// Both are fire-and-forget; escalation must never block the pause path.
func (h *ErrorHandler) escalate(campaignID, profileID, severity, message string) {
	level := models.LogLevelError
	if severity == models.SeverityCritical {
		level = models.LogLevelCritical
	} else if severity == models.SeverityDelivery {
		level = models.LogLevelWarning
	}
	h.audit.Log(campaignID, profileID, level, "error_escalation", message, models.JSON{
		"severity": severity,
	})
	h.events.PublishError(models.ErrorEvent{
		CampaignID: campaignID,
		ProfileID:  profileID,
		Severity:   severity,
		Message:    message,
	})
}

// classifyError maps a send error message onto the escalation taxonomy.
// Worker results carry flattened error strings, so matching is on the
// sentinel texts they embed.
func classifyError(message string) string {
	switch {
	case strings.Contains(message, ErrAutomationDown.Error()):
		return models.SeverityNetwork
	case strings.Contains(message, ErrProfileUnavailable.Error()),
		strings.Contains(message, ErrRateLimited.Error()):
		return models.SeverityProfile
	case strings.Contains(message, "internal error"):
		return models.SeverityCritical
	default:
		return models.SeverityDelivery
	}
}
