package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

func testCampaign(id string, profiles ...models.Profile) *models.Campaign {
	return &models.Campaign{
		ID:            id,
		Name:          "test campaign",
		Status:        models.CampaignStatusDraft,
		Channel:       models.ChannelUniversal,
		ChannelPolicy: models.ChannelPolicyBoth,
		MessageText:   "hello",
		Profiles:      profiles,
	}
}

func activeProfile(id string) models.Profile {
	return models.Profile{ID: id, Status: models.ProfileStatusActive}
}

func testContacts(n int) []models.Contact {
	contacts := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		contacts = append(contacts, models.Contact{
			ID:     fmt.Sprintf("contact-%d", i),
			Phone:  fmt.Sprintf("+8490000%04d", i),
			Status: models.ContactStatusActive,
		})
	}
	return contacts
}

func newTestBalancer(campaign *models.Campaign, contacts []models.Contact) (*LoadBalancer, *fakeQueueStore, *fakeAssignmentStore, *fakeCampaignStore) {
	campaignStore := newFakeCampaignStore(campaign)
	queueStore := newFakeQueueStore()
	assignmentStore := newFakeAssignmentStore()
	balancer := NewLoadBalancer(campaignStore, newFakeContactStore(contacts...), queueStore, assignmentStore, NewAuditLogger(newFakeLogStore()))
	return balancer, queueStore, assignmentStore, campaignStore
}

func TestBuildQueueRoundRobinSplit(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"), activeProfile("p2"), activeProfile("p3"))
	balancer, queueStore, assignmentStore, campaignStore := newTestBalancer(campaign, testContacts(10))

	total, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	// 10 over 3 profiles splits 4/3/3
	assignments, err := assignmentStore.ListByCampaign("c1")
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	counts := map[string]int{}
	sum := 0
	for _, a := range assignments {
		counts[a.ProfileID] = a.AssignedCount
		sum += a.AssignedCount
		assert.Equal(t, models.AssignmentStatusActive, a.Status)
	}
	assert.Equal(t, 10, sum)
	assert.Equal(t, 4, counts["p1"])
	assert.Equal(t, 3, counts["p2"])
	assert.Equal(t, 3, counts["p3"])

	// Contact k lands on profile k mod 3, not on a contiguous block
	wantPartitions := map[string][]string{
		"p1": {"contact-0", "contact-3", "contact-6", "contact-9"},
		"p2": {"contact-1", "contact-4", "contact-7"},
		"p3": {"contact-2", "contact-5", "contact-8"},
	}
	for profileID, want := range wantPartitions {
		items, err := queueStore.FetchPending("c1", profileID, 100)
		require.NoError(t, err)
		got := make([]string, 0, len(items))
		for _, item := range items {
			got = append(got, item.ContactID)
		}
		assert.Equal(t, want, got, "partition of %s", profileID)
	}

	stored, err := campaignStore.GetByID("c1")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.TotalContacts)
	assert.Equal(t, 0, stored.ProcessedContacts)
}

func TestBuildQueueSkipsInactiveProfiles(t *testing.T) {
	campaign := testCampaign("c1",
		activeProfile("p1"),
		models.Profile{ID: "p2", Status: models.ProfileStatusFailed},
		models.Profile{ID: "p3", Status: models.ProfileStatusDisabled},
	)
	balancer, queueStore, _, _ := newTestBalancer(campaign, testContacts(4))

	total, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	items, err := queueStore.FetchPending("c1", "p1", 100)
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestBuildQueueNoActiveProfiles(t *testing.T) {
	campaign := testCampaign("c1", models.Profile{ID: "p1", Status: models.ProfileStatusFailed})
	balancer, _, _, _ := newTestBalancer(campaign, testContacts(4))

	_, err := balancer.BuildQueue(campaign)
	assert.ErrorContains(t, err, "no active profiles")
}

func TestBuildQueueEmptyAudience(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"))
	campaign.Filter.Statuses = []string{models.ContactStatusBlocked}
	balancer, _, _, _ := newTestBalancer(campaign, testContacts(4))

	_, err := balancer.BuildQueue(campaign)
	assert.ErrorContains(t, err, "matched no contacts")
}

func TestBuildQueueDedupeAndCap(t *testing.T) {
	contacts := testContacts(6)
	contacts[3].Phone = contacts[0].Phone
	contacts[5].Phone = contacts[1].Phone

	campaign := testCampaign("c1", activeProfile("p1"))
	campaign.Filter.DedupeByPhone = true
	campaign.Filter.MaxContacts = 3
	balancer, queueStore, _, _ := newTestBalancer(campaign, contacts)

	total, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	items, err := queueStore.FetchPending("c1", "p1", 100)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, item := range items {
		assert.False(t, seen[item.Phone], "phone %s queued twice", item.Phone)
		seen[item.Phone] = true
	}
}

func TestBuildQueueChannelSnapshot(t *testing.T) {
	contacts := testContacts(2)
	contacts[0].WhatsappValidity = models.ValidityValid
	contacts[0].TelegramValidity = models.ValidityInvalid

	t.Run("explicit channel is pinned", func(t *testing.T) {
		campaign := testCampaign("c1", activeProfile("p1"))
		campaign.Channel = models.ChannelWhatsapp
		balancer, queueStore, _, _ := newTestBalancer(campaign, contacts)

		_, err := balancer.BuildQueue(campaign)
		require.NoError(t, err)

		items, _ := queueStore.FetchPending("c1", "p1", 100)
		for _, item := range items {
			require.NotNil(t, item.Channel)
			assert.Equal(t, models.ChannelWhatsapp, *item.Channel)
		}
	})

	t.Run("universal snapshots validity", func(t *testing.T) {
		campaign := testCampaign("c2", activeProfile("p1"))
		balancer, queueStore, _, _ := newTestBalancer(campaign, contacts)

		_, err := balancer.BuildQueue(campaign)
		require.NoError(t, err)

		items, _ := queueStore.FetchPending("c2", "p1", 100)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Nil(t, item.Channel)
			if item.ContactID == "contact-0" {
				assert.Equal(t, models.ValidityValid, item.WhatsappValidity)
				assert.Equal(t, models.ValidityInvalid, item.TelegramValidity)
			}
		}
	})
}

func TestRebalance(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"), activeProfile("p2"), activeProfile("p3"))
	balancer, queueStore, assignmentStore, _ := newTestBalancer(campaign, testContacts(9))

	_, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)

	// p1 keeps 3 pending items; it fails and two survivors remain
	require.NoError(t, assignmentStore.UpdateStatus("c1", "p1", models.AssignmentStatusFailed, "logged out"))
	moved, err := balancer.Rebalance("c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, moved)

	// 3 items over 2 survivors splits 2/1
	ids, err := queueStore.PendingIDsByProfile("c1", "p1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	assignments, _ := assignmentStore.ListByCampaign("c1")
	counts := map[string]int{}
	for _, a := range assignments {
		counts[a.ProfileID] = a.AssignedCount
	}
	assert.Equal(t, 3, counts["p1"], "retired profile keeps its historical assigned count")
	assert.Equal(t, 5, counts["p2"])
	assert.Equal(t, 4, counts["p3"])

	// The orphaned items are dealt round-robin over the survivors in
	// oldest-first order: p1 held contacts 0, 3 and 6
	partition := func(profileID string) []string {
		items, err := queueStore.FetchPending("c1", profileID, 100)
		require.NoError(t, err)
		got := make([]string, 0, len(items))
		for _, item := range items {
			got = append(got, item.ContactID)
		}
		return got
	}
	assert.Equal(t, []string{"contact-0", "contact-1", "contact-4", "contact-6", "contact-7"}, partition("p2"))
	assert.Equal(t, []string{"contact-2", "contact-3", "contact-5", "contact-8"}, partition("p3"))
}

func TestRebalanceNoSurvivors(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"))
	balancer, _, assignmentStore, _ := newTestBalancer(campaign, testContacts(3))

	_, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)

	require.NoError(t, assignmentStore.UpdateStatus("c1", "p1", models.AssignmentStatusFailed, "banned"))
	_, err = balancer.Rebalance("c1", "p1")
	assert.ErrorContains(t, err, "no surviving profiles")
}

func TestRebalanceNothingPending(t *testing.T) {
	campaign := testCampaign("c1", activeProfile("p1"), activeProfile("p2"))
	balancer, queueStore, _, _ := newTestBalancer(campaign, testContacts(2))

	_, err := balancer.BuildQueue(campaign)
	require.NoError(t, err)

	// Drain p1's partition before it fails
	items, _ := queueStore.FetchPending("c1", "p1", 100)
	for _, item := range items {
		require.NoError(t, queueStore.MarkProcessing(item.ID))
		require.NoError(t, queueStore.MarkResult(item.ID, models.QueueItemSent, models.ChannelWhatsapp, "", 1, nil))
	}

	moved, err := balancer.Rebalance("c1", "p1")
	require.NoError(t, err)
	assert.Zero(t, moved)
}
