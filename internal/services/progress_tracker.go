package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// speedWindow is the sliding window used to estimate throughput
const speedWindow = 5 * time.Minute

// ProgressTracker maintains campaign and per-profile counters and derives
// speed and ETA from a sliding window of recent results
type ProgressTracker struct {
	campaigns   CampaignStore
	assignments AssignmentStore
	queue       QueueStore

	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewProgressTracker(campaigns CampaignStore, assignments AssignmentStore, queue QueueStore) *ProgressTracker {
	return &ProgressTracker{
		campaigns:   campaigns,
		assignments: assignments,
		queue:       queue,
		windows:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Record applies one item outcome to the campaign and profile counters.
// The increments are atomic at the store level, so concurrent workers
// never lose updates.
func (t *ProgressTracker) Record(result models.ItemResult) error {
	var successful, failed, skipped int
	switch result.Status {
	case models.QueueItemSent:
		successful = 1
	case models.QueueItemFailed:
		failed = 1
	case models.QueueItemSkipped:
		skipped = 1
	}

	if err := t.campaigns.IncrementCounters(result.CampaignID, 1, successful, failed, skipped); err != nil {
		return err
	}
	if result.ProfileID != "" {
		if err := t.assignments.IncrementCounters(result.CampaignID, result.ProfileID, 1, successful, failed); err != nil {
			logrus.Warnf("[Progress] Failed to bump profile counters for %s: %v", result.ProfileID, err)
		}
	}

	t.mu.Lock()
	t.windows[result.CampaignID] = append(t.windows[result.CampaignID], t.now())
	t.mu.Unlock()
	return nil
}

// Snapshot builds a full progress event from the persisted counters plus
// the in-memory throughput window
func (t *ProgressTracker) Snapshot(campaignID string) (models.ProgressEvent, error) {
	campaign, err := t.campaigns.GetByID(campaignID)
	if err != nil {
		return models.ProgressEvent{}, err
	}

	event := models.ProgressEvent{
		CampaignID: campaignID,
		Total:      campaign.TotalContacts,
		Processed:  campaign.ProcessedContacts,
		Successful: campaign.SuccessfulContacts,
		Failed:     campaign.FailedContacts,
		Skipped:    campaign.SkippedContacts,
	}
	if campaign.TotalContacts > 0 {
		event.Percent = float64(campaign.ProcessedContacts) / float64(campaign.TotalContacts) * 100
	}

	event.Speed = t.speed(campaignID)
	remaining := campaign.TotalContacts - campaign.ProcessedContacts
	if event.Speed > 0 && remaining > 0 {
		eta := int64(float64(remaining) / event.Speed * 60)
		event.ETASeconds = &eta
	}
	return event, nil
}

// IsComplete reports whether no pending or processing items remain
func (t *ProgressTracker) IsComplete(campaignID string) (bool, error) {
	remaining, err := t.queue.CountRemaining(campaignID)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// Reset drops the throughput window, used when a campaign stops
func (t *ProgressTracker) Reset(campaignID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, campaignID)
}

// speed returns contacts per minute over the sliding window
func (t *ProgressTracker) speed(campaignID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.windows[campaignID]
	if len(window) == 0 {
		return 0
	}

	cutoff := t.now().Add(-speedWindow)
	recent := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	t.windows[campaignID] = recent
	if len(recent) == 0 {
		return 0
	}

	// Scale by elapsed time, not the full window, so early readings are
	// not artificially low
	elapsed := t.now().Sub(recent[0])
	if elapsed < time.Second {
		elapsed = time.Second
	}
	if elapsed > speedWindow {
		elapsed = speedWindow
	}
	return float64(len(recent)) / elapsed.Minutes()
}
