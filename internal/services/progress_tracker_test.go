package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

func newTestTracker(campaign *models.Campaign) (*ProgressTracker, *fakeCampaignStore, *fakeAssignmentStore, *fakeQueueStore) {
	campaigns := newFakeCampaignStore(campaign)
	assignments := newFakeAssignmentStore()
	queue := newFakeQueueStore()
	return NewProgressTracker(campaigns, assignments, queue), campaigns, assignments, queue
}

func sentResult(itemID string) models.ItemResult {
	return models.ItemResult{
		CampaignID: "c1", ItemID: itemID, ProfileID: "p1",
		ContactID: "x-" + itemID, Phone: "+84" + itemID,
		Channel: models.ChannelWhatsapp, Status: models.QueueItemSent, Attempts: 1,
	}
}

func TestRecordIncrementsCounters(t *testing.T) {
	campaign := testCampaign("c1")
	campaign.TotalContacts = 10
	tracker, campaigns, assignments, _ := newTestTracker(campaign)
	require.NoError(t, assignments.ReplaceForCampaign("c1", []models.ProfileAssignment{
		{CampaignID: "c1", ProfileID: "p1", Status: models.AssignmentStatusActive},
	}))

	require.NoError(t, tracker.Record(sentResult("i1")))

	failed := sentResult("i2")
	failed.Status = models.QueueItemFailed
	require.NoError(t, tracker.Record(failed))

	skipped := sentResult("i3")
	skipped.Status = models.QueueItemSkipped
	require.NoError(t, tracker.Record(skipped))

	c, _ := campaigns.GetByID("c1")
	assert.Equal(t, 3, c.ProcessedContacts)
	assert.Equal(t, 1, c.SuccessfulContacts)
	assert.Equal(t, 1, c.FailedContacts)
	assert.Equal(t, 1, c.SkippedContacts)

	rows, _ := assignments.ListByCampaign("c1")
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].ProcessedCount)
	assert.Equal(t, 1, rows[0].SuccessCount)
	assert.Equal(t, 1, rows[0].FailedCount)
}

func TestSnapshotComputesSpeedAndETA(t *testing.T) {
	campaign := testCampaign("c1")
	campaign.TotalContacts = 40
	tracker, campaigns, _, _ := newTestTracker(campaign)

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	now := base
	tracker.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		now = base.Add(time.Duration(i) * 6 * time.Second)
		require.NoError(t, tracker.Record(sentResult(string(rune('a'+i)))))
	}
	// 10 results in the last minute
	now = base.Add(time.Minute)

	// Counters were incremented by Record; re-read for processed=10
	c, _ := campaigns.GetByID("c1")
	require.Equal(t, 10, c.ProcessedContacts)

	snapshot, err := tracker.Snapshot("c1")
	require.NoError(t, err)
	assert.Equal(t, 40, snapshot.Total)
	assert.Equal(t, 10, snapshot.Processed)
	assert.InDelta(t, 25.0, snapshot.Percent, 0.01)
	assert.InDelta(t, 10.0, snapshot.Speed, 0.01)
	require.NotNil(t, snapshot.ETASeconds)
	// 30 remaining at 10/min
	assert.InDelta(t, 180, float64(*snapshot.ETASeconds), 1)
}

func TestSnapshotETAUnknownWithoutThroughput(t *testing.T) {
	campaign := testCampaign("c1")
	campaign.TotalContacts = 5
	tracker, _, _, _ := newTestTracker(campaign)

	snapshot, err := tracker.Snapshot("c1")
	require.NoError(t, err)
	assert.Zero(t, snapshot.Speed)
	assert.Nil(t, snapshot.ETASeconds)
}

func TestSnapshotETANilWhenDone(t *testing.T) {
	campaign := testCampaign("c1")
	campaign.TotalContacts = 1
	tracker, _, _, _ := newTestTracker(campaign)

	require.NoError(t, tracker.Record(sentResult("i1")))

	snapshot, err := tracker.Snapshot("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Processed)
	assert.Nil(t, snapshot.ETASeconds, "no remaining work means no ETA")
}

func TestSpeedWindowExpires(t *testing.T) {
	campaign := testCampaign("c1")
	campaign.TotalContacts = 10
	tracker, _, _, _ := newTestTracker(campaign)

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	now := base
	tracker.now = func() time.Time { return now }

	require.NoError(t, tracker.Record(sentResult("i1")))

	// Well past the sliding window the old result no longer counts
	now = base.Add(speedWindow + time.Minute)
	assert.Zero(t, tracker.speed("c1"))
}

func TestIsComplete(t *testing.T) {
	campaign := testCampaign("c1")
	tracker, _, _, queue := newTestTracker(campaign)

	p1 := "p1"
	require.NoError(t, queue.BulkCreate([]models.QueueItem{
		{ID: "i1", CampaignID: "c1", ContactID: "x1", Phone: "+1", ProfileID: &p1, Status: models.QueueItemSent},
		{ID: "i2", CampaignID: "c1", ContactID: "x2", Phone: "+2", ProfileID: &p1, Status: models.QueueItemProcessing},
	}))

	complete, err := tracker.IsComplete("c1")
	require.NoError(t, err)
	assert.False(t, complete, "processing items still count as remaining")

	require.NoError(t, queue.MarkResult("i2", models.QueueItemFailed, "", "boom", 1, nil))
	complete, err = tracker.IsComplete("c1")
	require.NoError(t, err)
	assert.True(t, complete)
}
