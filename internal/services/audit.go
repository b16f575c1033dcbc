package services

import (
	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// AuditLogger persists campaign audit rows. A failed write is logged and
// swallowed; auditing must never break execution.
type AuditLogger struct {
	logs LogStore
}

func NewAuditLogger(logs LogStore) *AuditLogger {
	return &AuditLogger{logs: logs}
}

func (a *AuditLogger) Log(campaignID, profileID, level, action, message string, metadata models.JSON) {
	entry := &models.CampaignLog{
		CampaignID: campaignID,
		ProfileID:  profileID,
		Level:      level,
		Action:     action,
		Message:    message,
		Metadata:   metadata,
	}
	if err := a.logs.Create(entry); err != nil {
		logrus.Errorf("[Audit] Failed to write log for campaign %s: %v", campaignID, err)
	}
}

func (a *AuditLogger) Info(campaignID, action, message string) {
	a.Log(campaignID, "", models.LogLevelInfo, action, message, nil)
}

func (a *AuditLogger) Warning(campaignID, action, message string) {
	a.Log(campaignID, "", models.LogLevelWarning, action, message, nil)
}

func (a *AuditLogger) Error(campaignID, action, message string) {
	a.Log(campaignID, "", models.LogLevelError, action, message, nil)
}
