package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// campaignControl is the slice of the executor the recovery service
// drives
type campaignControl interface {
	Start(campaignID string) (*models.Campaign, error)
	Resume(campaignID string) (*models.Campaign, error)
}

// criticalEscalator routes recovery failures into the error-escalation
// path (operator notification, Sentry)
type criticalEscalator interface {
	HandleCritical(campaignID string, err error)
}

// RecoveryService restores interrupted campaigns after a process restart
// and periodically reclaims items stuck in processing by dead workers
type RecoveryService struct {
	campaigns CampaignStore
	queue     QueueStore
	control   campaignControl
	escalator criticalEscalator
	audit     *AuditLogger

	staleTimeout  time.Duration
	sweepInterval time.Duration
	stopChan      chan struct{}
}

func NewRecoveryService(campaigns CampaignStore, queue QueueStore, control campaignControl, escalator criticalEscalator, audit *AuditLogger, staleTimeout time.Duration) *RecoveryService {
	return &RecoveryService{
		campaigns:     campaigns,
		queue:         queue,
		control:       control,
		escalator:     escalator,
		audit:         audit,
		staleTimeout:  staleTimeout,
		sweepInterval: staleTimeout / 3,
		stopChan:      make(chan struct{}),
	}
}

// RecoverOnBoot picks up campaigns that were live when the previous
// process died. Running campaigns are parked as auto-paused with their
// in-flight items returned to pending; those with auto-resume enabled
// (and queued ones) are restarted immediately.
func (r *RecoveryService) RecoverOnBoot() error {
	campaigns, err := r.campaigns.ListByStatus(models.CampaignStatusRunning, models.CampaignStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list interrupted campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		logrus.Info("[Recovery] No interrupted campaigns found")
		return nil
	}

	logrus.Infof("[Recovery] Found %d interrupted campaigns", len(campaigns))
	for _, campaign := range campaigns {
		if err := r.recoverCampaign(campaign); err != nil {
			logrus.Errorf("[Recovery] Failed to recover campaign %s: %v", campaign.ID, err)
			r.audit.Error(campaign.ID, "recovery_failed", err.Error())
			if r.escalator != nil {
				r.escalator.HandleCritical(campaign.ID, err)
			}
		}
	}
	return nil
}

func (r *RecoveryService) recoverCampaign(campaign *models.Campaign) error {
	switch campaign.Status {
	case models.CampaignStatusRunning:
		reset, err := r.queue.ResetProcessing(campaign.ID)
		if err != nil {
			return fmt.Errorf("failed to reset in-flight items: %w", err)
		}

		now := time.Now()
		campaign.Status = models.CampaignStatusPaused
		campaign.PausedAt = &now
		campaign.AutoPaused = true
		if err := r.campaigns.Update(campaign); err != nil {
			return fmt.Errorf("failed to park campaign: %w", err)
		}
		r.audit.Warning(campaign.ID, "recovered",
			fmt.Sprintf("Parked after restart, %d in-flight items returned to pending", reset))

		if !campaign.Pacing.AutoResume {
			logrus.Infof("[Recovery] Campaign %s parked (auto-resume off)", campaign.ID)
			return nil
		}
		if _, err := r.control.Resume(campaign.ID); err != nil {
			return fmt.Errorf("failed to auto-resume: %w", err)
		}
		logrus.Infof("[Recovery] Campaign %s auto-resumed after restart", campaign.ID)

	case models.CampaignStatusQueued:
		if !campaign.Pacing.AutoResume {
			return nil
		}
		if _, err := r.control.Start(campaign.ID); err != nil {
			return fmt.Errorf("failed to auto-start: %w", err)
		}
		logrus.Infof("[Recovery] Campaign %s auto-started after restart", campaign.ID)
	}
	return nil
}

// StartSweep launches the periodic reclaim of items stuck in processing
// longer than the stale timeout
func (r *RecoveryService) StartSweep() {
	go r.sweepLoop()
	logrus.Infof("[Recovery] Stale-item sweep started (timeout %s, every %s)", r.staleTimeout, r.sweepInterval)
}

// Stop terminates the sweep loop
func (r *RecoveryService) Stop() {
	close(r.stopChan)
}

func (r *RecoveryService) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *RecoveryService) sweep() {
	reclaimed, err := r.queue.ResetStaleProcessing(time.Now().Add(-r.staleTimeout))
	if err != nil {
		logrus.Errorf("[Recovery] Stale-item sweep failed: %v", err)
		return
	}
	if reclaimed > 0 {
		logrus.Warnf("[Recovery] Reclaimed %d stale in-flight items", reclaimed)
	}
}
