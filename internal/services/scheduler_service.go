package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/config"
	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// schedulerExecutor is the slice of the executor the scheduler drives
type schedulerExecutor interface {
	Queue(campaignID string) (*models.Campaign, error)
	Start(campaignID string) (*models.Campaign, error)
	Pause(campaignID, reason string, auto bool) (*models.Campaign, error)
	Resume(campaignID string) (*models.Campaign, error)
}

// SchedulerService runs the background cadences: promoting due scheduled
// campaigns, enforcing send windows, re-arming recurring campaigns,
// archiving stale terminal campaigns and pruning old logs
type SchedulerService struct {
	campaigns CampaignStore
	logs      LogStore
	executor  schedulerExecutor
	audit     *AuditLogger

	scheduleTick     time.Duration
	windowTick       time.Duration
	maintenanceTick  time.Duration
	archiveAfter     time.Duration
	logRetention     time.Duration
	autoResumeMaxAge time.Duration

	stopChan chan struct{}
	now      func() time.Time
}

func NewSchedulerService(campaigns CampaignStore, logs LogStore, executor schedulerExecutor, audit *AuditLogger, cfg *config.Config) *SchedulerService {
	return &SchedulerService{
		campaigns:        campaigns,
		logs:             logs,
		executor:         executor,
		audit:            audit,
		scheduleTick:     cfg.ScheduleTickInterval,
		windowTick:       cfg.WindowTickInterval,
		maintenanceTick:  cfg.ArchiveTickInterval,
		archiveAfter:     time.Duration(cfg.ArchiveAfterDays) * 24 * time.Hour,
		logRetention:     time.Duration(cfg.LogRetentionDays) * 24 * time.Hour,
		autoResumeMaxAge: cfg.AutoResumeMaxAge,
		stopChan:         make(chan struct{}),
		now:              time.Now,
	}
}

// Start launches the background loops
func (s *SchedulerService) Start() {
	go s.loop(s.scheduleTick, s.scheduleTickFn)
	go s.loop(s.windowTick, s.windowTickFn)
	go s.loop(s.maintenanceTick, s.maintenanceTickFn)
	logrus.Infof("[Scheduler] Started (schedule %s, window %s, maintenance %s)",
		s.scheduleTick, s.windowTick, s.maintenanceTick)
}

// Stop terminates all loops
func (s *SchedulerService) Stop() {
	close(s.stopChan)
}

func (s *SchedulerService) loop(interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// scheduleTickFn promotes due scheduled campaigns and re-arms recurring
// ones that have finished
func (s *SchedulerService) scheduleTickFn() {
	s.promoteDue()
	s.rearmRecurring()
}

func (s *SchedulerService) promoteDue() {
	due, err := s.campaigns.ListDue(s.now())
	if err != nil {
		logrus.Errorf("[Scheduler] Failed to list due campaigns: %v", err)
		return
	}
	for _, campaign := range due {
		if !InSendWindow(campaign.Schedule, s.now()) {
			// Due but outside its window; picked up once the window opens
			continue
		}
		if _, err := s.executor.Queue(campaign.ID); err != nil {
			logrus.Errorf("[Scheduler] Failed to queue due campaign %s: %v", campaign.ID, err)
			s.audit.Error(campaign.ID, "schedule_failed", err.Error())
			continue
		}
		if _, err := s.executor.Start(campaign.ID); err != nil {
			logrus.Errorf("[Scheduler] Failed to start due campaign %s: %v", campaign.ID, err)
			s.audit.Error(campaign.ID, "schedule_failed", err.Error())
			continue
		}
		logrus.Infof("[Scheduler] Promoted due campaign %s", campaign.ID)
		s.audit.Info(campaign.ID, "schedule_promoted", "Campaign promoted by scheduler")
	}
}

// rearmRecurring moves finished recurring campaigns back to scheduled at
// their next occurrence
func (s *SchedulerService) rearmRecurring() {
	finished, err := s.campaigns.ListByStatus(models.CampaignStatusCompleted)
	if err != nil {
		logrus.Errorf("[Scheduler] Failed to list completed campaigns: %v", err)
		return
	}
	for _, campaign := range finished {
		period := recurrencePeriod(campaign.Schedule.Recurrence)
		if period == 0 || campaign.ScheduledAt == nil {
			continue
		}
		next := *campaign.ScheduledAt
		for !next.After(s.now()) {
			next = next.Add(period)
		}
		campaign.Status = models.CampaignStatusScheduled
		campaign.ScheduledAt = &next
		if err := s.campaigns.Update(campaign); err != nil {
			logrus.Errorf("[Scheduler] Failed to re-arm campaign %s: %v", campaign.ID, err)
			continue
		}
		logrus.Infof("[Scheduler] Re-armed recurring campaign %s for %s", campaign.ID, next.Format(time.RFC3339))
		s.audit.Info(campaign.ID, "schedule_rearmed",
			fmt.Sprintf("Recurring campaign scheduled for %s", next.Format(time.RFC3339)))
	}
}

// windowTickFn pauses running campaigns outside their send window and
// resumes auto-paused ones whose window re-opened. Operator pauses are
// never auto-resumed, and neither are pauses older than the cutoff.
func (s *SchedulerService) windowTickFn() {
	campaigns, err := s.campaigns.ListByStatus(models.CampaignStatusRunning, models.CampaignStatusPaused)
	if err != nil {
		logrus.Errorf("[Scheduler] Failed to list campaigns for window check: %v", err)
		return
	}
	now := s.now()
	for _, campaign := range campaigns {
		inWindow := InSendWindow(campaign.Schedule, now)
		switch campaign.Status {
		case models.CampaignStatusRunning:
			if inWindow {
				continue
			}
			if _, err := s.executor.Pause(campaign.ID, "outside send window", true); err != nil {
				logrus.Errorf("[Scheduler] Failed to window-pause campaign %s: %v", campaign.ID, err)
			}
		case models.CampaignStatusPaused:
			if !inWindow || !campaign.AutoPaused {
				continue
			}
			if campaign.PausedAt != nil && now.Sub(*campaign.PausedAt) > s.autoResumeMaxAge {
				continue
			}
			if _, err := s.executor.Resume(campaign.ID); err != nil {
				logrus.Errorf("[Scheduler] Failed to window-resume campaign %s: %v", campaign.ID, err)
			}
		}
	}
}

// maintenanceTickFn archives stale terminal campaigns and prunes old logs
func (s *SchedulerService) maintenanceTickFn() {
	terminal, err := s.campaigns.ListByStatus(
		models.CampaignStatusCompleted, models.CampaignStatusCancelled, models.CampaignStatusError)
	if err != nil {
		logrus.Errorf("[Scheduler] Failed to list terminal campaigns: %v", err)
	} else {
		cutoff := s.now().Add(-s.archiveAfter)
		for _, campaign := range terminal {
			if recurrencePeriod(campaign.Schedule.Recurrence) != 0 {
				continue
			}
			// Campaigns that ended in error carry no completion stamp;
			// age those off their last update instead
			finished := campaign.CompletedAt
			if finished == nil {
				finished = &campaign.UpdatedAt
			}
			if finished.After(cutoff) {
				continue
			}
			if err := s.campaigns.Archive(campaign.ID, s.now()); err != nil {
				logrus.Errorf("[Scheduler] Failed to archive campaign %s: %v", campaign.ID, err)
				continue
			}
			logrus.Infof("[Scheduler] Archived campaign %s", campaign.ID)
		}
	}

	deleted, err := s.logs.DeleteOlderThan(s.now().Add(-s.logRetention))
	if err != nil {
		logrus.Errorf("[Scheduler] Log retention cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		logrus.Infof("[Scheduler] Log retention cleanup removed %d rows", deleted)
	}
}

// InSendWindow evaluates the campaign's schedule restrictions at the
// given instant. Hour and day restrictions are independent; both must
// pass. Overnight hour windows (start > end) are supported.
func InSendWindow(schedule models.ScheduleConfig, now time.Time) bool {
	loc := time.UTC
	if schedule.Timezone != "" {
		if l, err := time.LoadLocation(schedule.Timezone); err == nil {
			loc = l
		} else {
			logrus.Warnf("[Scheduler] Unknown timezone %q, falling back to UTC", schedule.Timezone)
		}
	}
	local := now.In(loc)

	if schedule.WorkHoursEnabled {
		hour := local.Hour()
		start, end := schedule.WorkHourStart, schedule.WorkHourEnd
		var ok bool
		if start < end {
			ok = hour >= start && hour < end
		} else if start > end {
			// Overnight window, e.g. 22 to 6
			ok = hour >= start || hour < end
		}
		if !ok {
			return false
		}
	}

	if schedule.WorkDaysEnabled {
		day := int(local.Weekday())
		found := false
		for _, d := range schedule.WorkDays {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func recurrencePeriod(recurrence string) time.Duration {
	switch recurrence {
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	}
	return 0
}
