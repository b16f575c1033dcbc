package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

type recordingCritical struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingCritical) HandleCritical(campaignID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, campaignID)
}

func newTestRecovery(campaigns *fakeCampaignStore, queue *fakeQueueStore) (*RecoveryService, *fakeSchedulerExecutor) {
	control := &fakeSchedulerExecutor{}
	r := NewRecoveryService(campaigns, queue, control, nil, NewAuditLogger(newFakeLogStore()), 15*time.Minute)
	return r, control
}

func TestRecoverOnBootParksAndResumesRunning(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"))
	campaign.Status = models.CampaignStatusRunning
	campaign.Pacing.AutoResume = true

	campaigns := newFakeCampaignStore(campaign)
	queue := newFakeQueueStore()
	p1 := "p1"
	require.NoError(t, queue.BulkCreate([]models.QueueItem{
		{ID: "i1", CampaignID: "c1", ContactID: "x1", Phone: "+1", ProfileID: &p1, Status: models.QueueItemProcessing},
		{ID: "i2", CampaignID: "c1", ContactID: "x2", Phone: "+2", ProfileID: &p1, Status: models.QueueItemPending},
	}))

	r, control := newTestRecovery(campaigns, queue)
	require.NoError(t, r.RecoverOnBoot())

	// Parked first, so the items the dead workers held are released
	parked, _ := campaigns.GetByID("c1")
	assert.Equal(t, models.CampaignStatusPaused, parked.Status)
	assert.True(t, parked.AutoPaused)

	counts, _ := queue.CountsByCampaign("c1")
	assert.Equal(t, int64(2), counts.Pending)
	assert.Zero(t, counts.Processing)

	assert.Equal(t, []string{"c1"}, control.resumed)
}

func TestRecoverOnBootParksWithoutAutoResume(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"))
	campaign.Status = models.CampaignStatusRunning

	campaigns := newFakeCampaignStore(campaign)
	r, control := newTestRecovery(campaigns, newFakeQueueStore())
	require.NoError(t, r.RecoverOnBoot())

	parked, _ := campaigns.GetByID("c1")
	assert.Equal(t, models.CampaignStatusPaused, parked.Status)
	assert.True(t, parked.AutoPaused)
	assert.Empty(t, control.resumed, "operator decides when a parked campaign restarts")
}

func TestRecoverOnBootStartsQueued(t *testing.T) {
	withResume := testCampaign("c1", activeProfile("p1"))
	withResume.Status = models.CampaignStatusQueued
	withResume.Pacing.AutoResume = true

	withoutResume := testCampaign("c2", activeProfile("p1"))
	withoutResume.Status = models.CampaignStatusQueued

	campaigns := newFakeCampaignStore(withResume, withoutResume)
	r, control := newTestRecovery(campaigns, newFakeQueueStore())
	require.NoError(t, r.RecoverOnBoot())

	assert.Equal(t, []string{"c1"}, control.started)

	untouched, _ := campaigns.GetByID("c2")
	assert.Equal(t, models.CampaignStatusQueued, untouched.Status)
}

func TestRecoverOnBootIgnoresSettledCampaigns(t *testing.T) {
	done := testCampaign("c1", activeProfile("p1"))
	done.Status = models.CampaignStatusCompleted

	paused := testCampaign("c2", activeProfile("p1"))
	paused.Status = models.CampaignStatusPaused

	campaigns := newFakeCampaignStore(done, paused)
	r, control := newTestRecovery(campaigns, newFakeQueueStore())
	require.NoError(t, r.RecoverOnBoot())

	assert.Empty(t, control.started)
	assert.Empty(t, control.resumed)
}

func TestRecoverOnBootEscalatesFailures(t *testing.T) {
	queuedFail := testCampaign("c1", activeProfile("p1"))
	queuedFail.Status = models.CampaignStatusQueued
	queuedFail.Pacing.AutoResume = true

	runningFail := testCampaign("c2", activeProfile("p1"))
	runningFail.Status = models.CampaignStatusRunning
	runningFail.Pacing.AutoResume = true

	campaigns := newFakeCampaignStore(queuedFail, runningFail)
	control := &fakeSchedulerExecutor{
		startErr:  errors.New("no active profile assignments"),
		resumeErr: errors.New("no active profile assignments"),
	}
	escalator := &recordingCritical{}
	r := NewRecoveryService(campaigns, newFakeQueueStore(), control, escalator, NewAuditLogger(newFakeLogStore()), 15*time.Minute)

	require.NoError(t, r.RecoverOnBoot())

	escalator.mu.Lock()
	defer escalator.mu.Unlock()
	assert.ElementsMatch(t, []string{"c1", "c2"}, escalator.calls,
		"a campaign the boot recovery cannot restart is escalated")
}

func TestSweepReclaimsStaleItems(t *testing.T) {
	queue := newFakeQueueStore()
	p1 := "p1"
	require.NoError(t, queue.BulkCreate([]models.QueueItem{
		{ID: "i1", CampaignID: "c1", ContactID: "x1", Phone: "+1", ProfileID: &p1, Status: models.QueueItemProcessing},
		{ID: "i2", CampaignID: "c1", ContactID: "x2", Phone: "+2", ProfileID: &p1, Status: models.QueueItemProcessing},
	}))

	// i2 was claimed just now; i1 has been stuck past the timeout
	queue.mu.Lock()
	queue.items["i1"].UpdatedAt = time.Now().Add(-20 * time.Minute)
	queue.items["i2"].UpdatedAt = time.Now()
	queue.mu.Unlock()

	r, _ := newTestRecovery(newFakeCampaignStore(), queue)
	r.sweep()

	counts, _ := queue.CountsByCampaign("c1")
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(1), counts.Processing)
}
