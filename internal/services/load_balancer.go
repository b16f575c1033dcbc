package services

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// LoadBalancer materializes campaign queues and redistributes work when a
// profile drops out mid-run
type LoadBalancer struct {
	campaigns   CampaignStore
	contacts    ContactStore
	queue       QueueStore
	assignments AssignmentStore
	audit       *AuditLogger
}

func NewLoadBalancer(campaigns CampaignStore, contacts ContactStore, queue QueueStore, assignments AssignmentStore, audit *AuditLogger) *LoadBalancer {
	return &LoadBalancer{
		campaigns:   campaigns,
		contacts:    contacts,
		queue:       queue,
		assignments: assignments,
		audit:       audit,
	}
}

// BuildQueue selects the audience, deals it round-robin across the
// campaign's active profiles and bulk-creates the queue items. Any previous queue of
// the campaign is discarded first, so re-queueing a terminal campaign
// starts from a clean slate.
func (b *LoadBalancer) BuildQueue(campaign *models.Campaign) (int, error) {
	profiles := activeProfiles(campaign.Profiles)
	if len(profiles) == 0 {
		return 0, fmt.Errorf("campaign %s has no active profiles", campaign.ID)
	}

	contacts, err := b.selectContacts(campaign)
	if err != nil {
		return 0, fmt.Errorf("failed to select contacts: %w", err)
	}
	if len(contacts) == 0 {
		return 0, fmt.Errorf("campaign %s audience filter matched no contacts", campaign.ID)
	}

	if err := b.queue.DeleteByCampaign(campaign.ID); err != nil {
		return 0, fmt.Errorf("failed to clear previous queue: %w", err)
	}

	var explicitChannel *string
	if campaign.Channel != models.ChannelUniversal {
		ch := campaign.Channel
		explicitChannel = &ch
	}

	// Strict round robin: contact k goes to profile k mod n, so no two
	// partitions differ by more than one. 10 contacts over 3 profiles
	// yields 4/3/3.
	counts := make([]int, len(profiles))
	items := make([]models.QueueItem, 0, len(contacts))
	for k, contact := range contacts {
		profileID := profiles[k%len(profiles)].ID
		items = append(items, models.QueueItem{
			CampaignID:       campaign.ID,
			ContactID:        contact.ID,
			Phone:            contact.Phone,
			ProfileID:        &profileID,
			Channel:          explicitChannel,
			WhatsappValidity: contact.WhatsappValidity,
			TelegramValidity: contact.TelegramValidity,
			Status:           models.QueueItemPending,
		})
		counts[k%len(profiles)]++
	}

	assignmentRows := make([]models.ProfileAssignment, 0, len(profiles))
	for i, profile := range profiles {
		assignmentRows = append(assignmentRows, models.ProfileAssignment{
			CampaignID:    campaign.ID,
			ProfileID:     profile.ID,
			AssignedCount: counts[i],
			Status:        models.AssignmentStatusActive,
		})
	}

	if err := b.queue.BulkCreate(items); err != nil {
		return 0, fmt.Errorf("failed to create queue items: %w", err)
	}
	if err := b.assignments.ReplaceForCampaign(campaign.ID, assignmentRows); err != nil {
		return 0, fmt.Errorf("failed to save profile assignments: %w", err)
	}
	if err := b.campaigns.ResetCounters(campaign.ID, len(items)); err != nil {
		return 0, fmt.Errorf("failed to reset campaign counters: %w", err)
	}

	logrus.Infof("[Balancer] Campaign %s: queued %d contacts across %d profiles", campaign.ID, len(items), len(profiles))
	b.audit.Info(campaign.ID, "queue_built",
		fmt.Sprintf("Queued %d contacts across %d profiles", len(items), len(profiles)))
	return len(items), nil
}

// Rebalance moves the pending items of a retired profile onto the
// surviving active profiles. Returns the number of items moved; zero
// survivors is reported to the caller, which decides whether to pause.
func (b *LoadBalancer) Rebalance(campaignID, failedProfileID string) (int, error) {
	itemIDs, err := b.queue.PendingIDsByProfile(campaignID, failedProfileID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending items: %w", err)
	}

	assignments, err := b.assignments.ListByCampaign(campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	var survivors []models.ProfileAssignment
	for _, a := range assignments {
		if a.ProfileID != failedProfileID && a.Status == models.AssignmentStatusActive {
			survivors = append(survivors, a)
		}
	}
	if len(survivors) == 0 {
		return 0, fmt.Errorf("campaign %s has no surviving profiles", campaignID)
	}
	if len(itemIDs) == 0 {
		return 0, nil
	}

	// Same round robin as the initial build: item k goes to survivor
	// k mod n
	batches := make([][]string, len(survivors))
	for k, id := range itemIDs {
		batches[k%len(survivors)] = append(batches[k%len(survivors)], id)
	}
	for i, survivor := range survivors {
		if len(batches[i]) == 0 {
			continue
		}
		if err := b.queue.Reassign(batches[i], survivor.ProfileID); err != nil {
			return 0, fmt.Errorf("failed to reassign items to profile %s: %w", survivor.ProfileID, err)
		}
		if err := b.assignments.AddAssigned(campaignID, survivor.ProfileID, len(batches[i])); err != nil {
			logrus.Warnf("[Balancer] Failed to bump assigned count for profile %s: %v", survivor.ProfileID, err)
		}
	}

	logrus.Infof("[Balancer] Campaign %s: moved %d items from profile %s to %d survivors",
		campaignID, len(itemIDs), failedProfileID, len(survivors))
	b.audit.Log(campaignID, failedProfileID, models.LogLevelWarning, "rebalanced",
		fmt.Sprintf("Moved %d pending items to %d surviving profiles", len(itemIDs), len(survivors)), nil)
	return len(itemIDs), nil
}

// selectContacts applies the campaign's audience filter: store-level
// status/region/cooldown/validity filters, then in-memory dedupe, shuffle
// and cap, in that order
func (b *LoadBalancer) selectContacts(campaign *models.Campaign) ([]models.Contact, error) {
	contacts, err := b.contacts.ListEligible(campaign.Filter, campaign.Channel, time.Now())
	if err != nil {
		return nil, err
	}

	if campaign.Filter.DedupeByPhone {
		seen := make(map[string]bool, len(contacts))
		deduped := contacts[:0]
		for _, c := range contacts {
			if seen[c.Phone] {
				continue
			}
			seen[c.Phone] = true
			deduped = append(deduped, c)
		}
		contacts = deduped
	}

	if campaign.Filter.Shuffle {
		rand.Shuffle(len(contacts), func(i, j int) {
			contacts[i], contacts[j] = contacts[j], contacts[i]
		})
	}

	if campaign.Filter.MaxContacts > 0 && len(contacts) > campaign.Filter.MaxContacts {
		contacts = contacts[:campaign.Filter.MaxContacts]
	}
	return contacts, nil
}

func activeProfiles(profiles []models.Profile) []models.Profile {
	var active []models.Profile
	for _, p := range profiles {
		if p.Status == models.ProfileStatusActive {
			active = append(active, p)
		}
	}
	return active
}
