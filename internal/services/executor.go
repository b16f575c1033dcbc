package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// profileLifecycleTimeout bounds launch/shutdown calls to the automation
// backend
const profileLifecycleTimeout = 2 * time.Minute

// ErrorEscalator receives item failures for classification and
// escalation. Set after construction to break the executor/handler cycle.
type ErrorEscalator interface {
	HandleFailure(result models.ItemResult)
}

// campaignRun tracks the live workers of one running campaign
type campaignRun struct {
	workers map[string]*ProfileWorker
	wg      sync.WaitGroup
}

// CampaignExecutor owns the campaign state machine and the worker pool.
// One worker per (campaign, profile) pair; all state transitions and
// worker lifecycle changes go through this service.
type CampaignExecutor struct {
	campaigns   CampaignStore
	queue       QueueStore
	contacts    ContactStore
	assignments AssignmentStore
	balancer    *LoadBalancer
	tracker     *ProgressTracker
	events      EventSink
	audit       *AuditLogger
	messenger   Messenger
	launcher    ProfileLauncher
	escalator   ErrorEscalator

	pollInterval      time.Duration
	progressPushEvery time.Duration

	mu           sync.Mutex
	runs         map[string]*campaignRun
	lastProgress map[string]time.Time
}

func NewCampaignExecutor(
	campaigns CampaignStore,
	queue QueueStore,
	contacts ContactStore,
	assignments AssignmentStore,
	balancer *LoadBalancer,
	tracker *ProgressTracker,
	events EventSink,
	audit *AuditLogger,
	messenger Messenger,
	launcher ProfileLauncher,
	pollInterval time.Duration,
	progressPushEvery time.Duration,
) *CampaignExecutor {
	return &CampaignExecutor{
		campaigns:         campaigns,
		queue:             queue,
		contacts:          contacts,
		assignments:       assignments,
		balancer:          balancer,
		tracker:           tracker,
		events:            events,
		audit:             audit,
		messenger:         messenger,
		launcher:          launcher,
		pollInterval:      pollInterval,
		progressPushEvery: progressPushEvery,
		runs:              make(map[string]*campaignRun),
		lastProgress:      make(map[string]time.Time),
	}
}

// SetErrorEscalator wires the error handler in after construction
func (e *CampaignExecutor) SetErrorEscalator(escalator ErrorEscalator) {
	e.escalator = escalator
}

// Queue materializes the send queue for a campaign. Allowed from draft,
// scheduled and any terminal status; a terminal campaign restarts with a
// fresh queue and zeroed counters.
func (e *CampaignExecutor) Queue(campaignID string) (*models.Campaign, error) {
	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(campaign.Status, models.CampaignStatusQueued) {
		return nil, fmt.Errorf("campaign %s cannot be queued from status %s", campaignID, campaign.Status)
	}

	total, err := e.balancer.BuildQueue(campaign)
	if err != nil {
		return nil, err
	}

	previous := campaign.Status
	campaign.Status = models.CampaignStatusQueued
	campaign.TotalContacts = total
	campaign.ProcessedContacts = 0
	campaign.SuccessfulContacts = 0
	campaign.FailedContacts = 0
	campaign.SkippedContacts = 0
	campaign.StartedAt = nil
	campaign.PausedAt = nil
	campaign.CompletedAt = nil
	campaign.AutoPaused = false
	if err := e.campaigns.Update(campaign); err != nil {
		return nil, err
	}

	e.publishStatus(campaignID, campaign.Status, previous)
	return campaign, nil
}

// Start launches one worker per active profile assignment. Valid from
// queued, and from running when the campaign has no live workers (a
// crashed process left it stamped running); a second start while workers
// are live is rejected. Resuming a paused campaign goes through Resume.
func (e *CampaignExecutor) Start(campaignID string) (*models.Campaign, error) {
	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusQueued && campaign.Status != models.CampaignStatusRunning {
		return nil, fmt.Errorf("campaign %s cannot start from status %s", campaignID, campaign.Status)
	}
	return e.launch(campaign, "started")
}

// Resume restarts the workers of a paused campaign. The queue still
// holds the unprocessed remainder, so no rebuild happens.
func (e *CampaignExecutor) Resume(campaignID string) (*models.Campaign, error) {
	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusPaused {
		return nil, fmt.Errorf("campaign %s cannot resume from status %s", campaignID, campaign.Status)
	}
	return e.launch(campaign, "resumed")
}

func (e *CampaignExecutor) launch(campaign *models.Campaign, action string) (*models.Campaign, error) {
	assignments, err := e.assignments.ListByCampaign(campaign.ID)
	if err != nil {
		return nil, err
	}
	var active []models.ProfileAssignment
	for _, a := range assignments {
		if a.Status == models.AssignmentStatusActive {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("campaign %s has no active profile assignments", campaign.ID)
	}

	previous := campaign.Status
	campaign.Status = models.CampaignStatusRunning
	campaign.PausedAt = nil
	campaign.AutoPaused = false
	if campaign.StartedAt == nil {
		now := time.Now()
		campaign.StartedAt = &now
	}
	if err := e.campaigns.Update(campaign); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, exists := e.runs[campaign.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("campaign %s already has live workers", campaign.ID)
	}
	run := &campaignRun{workers: make(map[string]*ProfileWorker)}
	e.runs[campaign.ID] = run
	for _, assignment := range active {
		e.launchProfile(campaign.ID, assignment.ProfileID)
		worker := NewProfileWorker(campaign, assignment.ProfileID, e.queue, e.messenger, e.pollInterval, e.OnItemResult)
		run.workers[assignment.ProfileID] = worker
		run.wg.Add(1)
		go func(w *ProfileWorker) {
			defer run.wg.Done()
			w.Run()
		}(worker)
	}
	e.mu.Unlock()

	logrus.Infof("[Executor] Campaign %s %s with %d workers", campaign.ID, action, len(active))
	e.audit.Info(campaign.ID, action, fmt.Sprintf("Campaign %s with %d profile workers", action, len(active)))
	e.publishStatus(campaign.ID, campaign.Status, previous)
	return campaign, nil
}

// Pause stops the workers, waits for them to drain, and returns in-flight
// items to pending so nothing is lost. auto marks scheduler- or
// error-initiated pauses, which are eligible for auto-resume.
func (e *CampaignExecutor) Pause(campaignID, reason string, auto bool) (*models.Campaign, error) {
	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusRunning {
		return nil, fmt.Errorf("campaign %s cannot pause from status %s", campaignID, campaign.Status)
	}

	e.stopWorkers(campaignID)

	// Reload after the drain: the workers recorded their final counter
	// increments while we waited, and the status write below saves the
	// whole row.
	campaign, err = e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusRunning {
		return nil, fmt.Errorf("campaign %s cannot pause from status %s", campaignID, campaign.Status)
	}

	now := time.Now()
	previous := campaign.Status
	campaign.Status = models.CampaignStatusPaused
	campaign.PausedAt = &now
	campaign.AutoPaused = auto
	if err := e.campaigns.Update(campaign); err != nil {
		return nil, err
	}

	if reset, err := e.queue.ResetProcessing(campaignID); err != nil {
		logrus.Errorf("[Executor] Campaign %s: failed to reset in-flight items: %v", campaignID, err)
	} else if reset > 0 {
		logrus.Infof("[Executor] Campaign %s: returned %d in-flight items to pending", campaignID, reset)
	}

	e.tracker.Reset(campaignID)
	e.clearProgressThrottle(campaignID)
	e.audit.Warning(campaignID, "paused", fmt.Sprintf("Campaign paused: %s", reason))
	e.publishStatus(campaignID, campaign.Status, previous)
	return campaign, nil
}

// SafePause is the escalation entry point: best-effort, asynchronous, and
// never blocks the caller. Worker goroutines escalate through here, so a
// synchronous wait would deadlock on their own WaitGroup.
func (e *CampaignExecutor) SafePause(campaignID, reason string) {
	go func() {
		if _, err := e.Pause(campaignID, reason, true); err != nil {
			logrus.Errorf("[Executor] Safe pause of campaign %s failed: %v", campaignID, err)
			sentry.CaptureException(fmt.Errorf("safe pause of campaign %s failed: %w", campaignID, err))
		}
	}()
}

// Cancel terminates a campaign. In-flight items are skipped with a
// cancellation note and counted exactly once.
func (e *CampaignExecutor) Cancel(campaignID string) (*models.Campaign, error) {
	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(campaign.Status, models.CampaignStatusCancelled) {
		return nil, fmt.Errorf("campaign %s cannot be cancelled from status %s", campaignID, campaign.Status)
	}

	e.stopWorkers(campaignID)

	skipped, err := e.queue.SkipProcessing(campaignID, "campaign cancelled")
	if err != nil {
		logrus.Errorf("[Executor] Campaign %s: failed to skip in-flight items: %v", campaignID, err)
	} else if skipped > 0 {
		if err := e.campaigns.IncrementCounters(campaignID, int(skipped), 0, 0, int(skipped)); err != nil {
			logrus.Errorf("[Executor] Campaign %s: failed to count cancelled items: %v", campaignID, err)
		}
	}

	// Reload so the status write does not clobber the counters bumped
	// above or during the worker drain
	campaign, err = e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(campaign.Status, models.CampaignStatusCancelled) {
		return nil, fmt.Errorf("campaign %s cannot be cancelled from status %s", campaignID, campaign.Status)
	}

	now := time.Now()
	previous := campaign.Status
	campaign.Status = models.CampaignStatusCancelled
	campaign.CompletedAt = &now
	if err := e.campaigns.Update(campaign); err != nil {
		return nil, err
	}

	e.tracker.Reset(campaignID)
	e.clearProgressThrottle(campaignID)
	e.audit.Warning(campaignID, "cancelled", "Campaign cancelled by operator")
	e.publishStatus(campaignID, campaign.Status, previous)
	return campaign, nil
}

// StopProfileWorker retires one worker without touching the rest of the
// campaign, used when a profile fails mid-run
func (e *CampaignExecutor) StopProfileWorker(campaignID, profileID string) {
	e.mu.Lock()
	run, exists := e.runs[campaignID]
	if !exists {
		e.mu.Unlock()
		return
	}
	worker, ok := run.workers[profileID]
	if ok {
		delete(run.workers, profileID)
	}
	e.mu.Unlock()

	if ok {
		worker.Stop()
		e.shutdownProfile(campaignID, profileID)
		logrus.Infof("[Executor] Campaign %s: retired worker for profile %s", campaignID, profileID)
	}
}

// IsRunning reports whether the executor holds live workers for the
// campaign
func (e *CampaignExecutor) IsRunning(campaignID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, exists := e.runs[campaignID]
	return exists
}

// StopAll tears down every live worker, used on graceful shutdown. The
// in-flight items are reclaimed by the recovery sweep on next start.
func (e *CampaignExecutor) StopAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.stopWorkers(id)
	}
	logrus.Infof("[Executor] Stopped workers of %d campaigns", len(ids))
}

// stopWorkers signals every worker of the campaign and waits for all of
// them to exit
func (e *CampaignExecutor) stopWorkers(campaignID string) {
	e.mu.Lock()
	run, exists := e.runs[campaignID]
	if exists {
		delete(e.runs, campaignID)
	}
	e.mu.Unlock()
	if !exists {
		return
	}

	profileIDs := make([]string, 0, len(run.workers))
	for profileID, worker := range run.workers {
		profileIDs = append(profileIDs, profileID)
		worker.Stop()
	}
	run.wg.Wait()

	for _, profileID := range profileIDs {
		e.shutdownProfile(campaignID, profileID)
	}
}

// launchProfile opens the browser profile before its worker starts.
// Best-effort: a failed launch surfaces as send errors the error handler
// classifies.
func (e *CampaignExecutor) launchProfile(campaignID, profileID string) {
	if e.launcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileLifecycleTimeout)
	defer cancel()
	if err := e.launcher.Launch(ctx, profileID); err != nil {
		logrus.Warnf("[Executor] Campaign %s: failed to launch profile %s: %v", campaignID, profileID, err)
	}
}

func (e *CampaignExecutor) shutdownProfile(campaignID, profileID string) {
	if e.launcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileLifecycleTimeout)
	defer cancel()
	if err := e.launcher.Shutdown(ctx, profileID); err != nil {
		logrus.Warnf("[Executor] Campaign %s: failed to shut down profile %s: %v", campaignID, profileID, err)
	}
}

// OnItemResult routes one worker outcome: persists the item, bumps the
// counters, emits events, escalates failures and probes for completion.
// A panic while handling one result forces that item to failed and never
// reaches the worker loop.
func (e *CampaignExecutor) OnItemResult(result models.ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[Executor] Panic handling result for item %s: %v", result.ItemID, r)
			sentry.CaptureException(fmt.Errorf("panic handling result for item %s: %v", result.ItemID, r))
			_ = e.queue.MarkResult(result.ItemID, models.QueueItemFailed, result.Channel,
				fmt.Sprintf("internal error: %v", r), result.Attempts, nil)
		}
	}()

	var sentAt *time.Time
	if result.Status == models.QueueItemSent {
		now := time.Now()
		sentAt = &now
	}
	if err := e.queue.MarkResult(result.ItemID, result.Status, result.Channel, result.Error, result.Attempts, sentAt); err != nil {
		logrus.Errorf("[Executor] Failed to persist result for item %s: %v", result.ItemID, err)
	}
	if result.Status == models.QueueItemSent {
		if err := e.contacts.TouchLastMessaged(result.ContactID, *sentAt); err != nil {
			logrus.Warnf("[Executor] Failed to stamp contact %s: %v", result.ContactID, err)
		}
	}

	if err := e.tracker.Record(result); err != nil {
		logrus.Errorf("[Executor] Failed to record progress for campaign %s: %v", result.CampaignID, err)
	}

	e.events.PublishMessage(models.MessageEvent{
		CampaignID: result.CampaignID,
		MessageID:  result.ItemID,
		ProfileID:  result.ProfileID,
		Status:     result.Status,
		Channel:    result.Channel,
		Error:      result.Error,
	})

	if result.Status == models.QueueItemFailed && e.escalator != nil {
		e.escalator.HandleFailure(result)
	}

	e.pushProgress(result.CampaignID, false)

	complete, err := e.tracker.IsComplete(result.CampaignID)
	if err != nil {
		logrus.Errorf("[Executor] Completion probe for campaign %s failed: %v", result.CampaignID, err)
		return
	}
	if complete {
		// Finalize on a fresh goroutine: this path runs on a worker
		// goroutine, which cannot wait for its own WaitGroup.
		go e.finalize(result.CampaignID)
	}
}

// finalize marks a drained campaign completed and emits the final events
func (e *CampaignExecutor) finalize(campaignID string) {
	e.stopWorkers(campaignID)

	campaign, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		logrus.Errorf("[Executor] Failed to load campaign %s for finalize: %v", campaignID, err)
		return
	}
	if campaign.Status != models.CampaignStatusRunning {
		// Pause or cancel won the race
		return
	}

	now := time.Now()
	previous := campaign.Status
	campaign.Status = models.CampaignStatusCompleted
	campaign.CompletedAt = &now
	if err := e.campaigns.Update(campaign); err != nil {
		logrus.Errorf("[Executor] Failed to complete campaign %s: %v", campaignID, err)
		return
	}

	assignments, err := e.assignments.ListByCampaign(campaignID)
	if err == nil {
		for _, a := range assignments {
			if a.Status == models.AssignmentStatusActive {
				if err := e.assignments.UpdateStatus(campaignID, a.ProfileID, models.AssignmentStatusFinished, ""); err != nil {
					logrus.Warnf("[Executor] Failed to finish assignment for profile %s: %v", a.ProfileID, err)
				}
			}
		}
	}

	e.pushProgress(campaignID, true)
	e.tracker.Reset(campaignID)
	e.clearProgressThrottle(campaignID)

	e.audit.Info(campaignID, "completed", fmt.Sprintf(
		"Campaign completed: %d sent, %d failed, %d skipped of %d",
		campaign.SuccessfulContacts, campaign.FailedContacts, campaign.SkippedContacts, campaign.TotalContacts))
	e.publishStatus(campaignID, campaign.Status, previous)
	e.events.PublishCompletion(models.CompletionEvent{
		CampaignID: campaignID,
		Total:      campaign.TotalContacts,
		Successful: campaign.SuccessfulContacts,
		Failed:     campaign.FailedContacts,
		Skipped:    campaign.SkippedContacts,
		StartedAt:  campaign.StartedAt,
		FinishedAt: now,
	})
	logrus.Infof("[Executor] Campaign %s completed", campaignID)
}

// pushProgress emits a progress snapshot, throttled unless forced
func (e *CampaignExecutor) pushProgress(campaignID string, force bool) {
	e.mu.Lock()
	last := e.lastProgress[campaignID]
	if !force && time.Since(last) < e.progressPushEvery {
		e.mu.Unlock()
		return
	}
	e.lastProgress[campaignID] = time.Now()
	e.mu.Unlock()

	snapshot, err := e.tracker.Snapshot(campaignID)
	if err != nil {
		logrus.Warnf("[Executor] Failed to snapshot progress for campaign %s: %v", campaignID, err)
		return
	}
	e.events.PublishProgress(snapshot)
}

// clearProgressThrottle drops the throttle stamp of a campaign that left
// the running state, so the map does not grow with every campaign ever run
func (e *CampaignExecutor) clearProgressThrottle(campaignID string) {
	e.mu.Lock()
	delete(e.lastProgress, campaignID)
	e.mu.Unlock()
}

func (e *CampaignExecutor) publishStatus(campaignID, status, previous string) {
	e.events.PublishStatus(models.StatusEvent{
		CampaignID:     campaignID,
		Status:         status,
		PreviousStatus: previous,
	})
}
