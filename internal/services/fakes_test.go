package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// In-memory fakes for the store interfaces. Behavior mirrors the gorm
// repositories closely enough for the engine tests: copies in, copies
// out, explicit Update required to persist changes.

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
}

func newFakeCampaignStore(campaigns ...*models.Campaign) *fakeCampaignStore {
	s := &fakeCampaignStore{campaigns: make(map[string]*models.Campaign)}
	for _, c := range campaigns {
		cp := *c
		s.campaigns[c.ID] = &cp
	}
	return s
}

func (s *fakeCampaignStore) GetByID(id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCampaignStore) Update(campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *campaign
	s.campaigns[campaign.ID] = &cp
	return nil
}

func (s *fakeCampaignStore) ListByStatus(statuses ...string) ([]*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Campaign
	for _, c := range s.campaigns {
		if c.ArchivedAt != nil {
			continue
		}
		for _, status := range statuses {
			if c.Status == status {
				cp := *c
				result = append(result, &cp)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *fakeCampaignStore) ListDue(now time.Time) ([]*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Campaign
	for _, c := range s.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ArchivedAt == nil &&
			c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *fakeCampaignStore) IncrementCounters(id string, processed, successful, failed, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.ProcessedContacts += processed
	c.SuccessfulContacts += successful
	c.FailedContacts += failed
	c.SkippedContacts += skipped
	return nil
}

func (s *fakeCampaignStore) ResetCounters(id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.TotalContacts = total
	c.ProcessedContacts = 0
	c.SuccessfulContacts = 0
	c.FailedContacts = 0
	c.SkippedContacts = 0
	return nil
}

func (s *fakeCampaignStore) Archive(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.ArchivedAt = &at
	return nil
}

type fakeQueueStore struct {
	mu    sync.Mutex
	items map[string]*models.QueueItem
	seq   int
	order map[string]int
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{
		items: make(map[string]*models.QueueItem),
		order: make(map[string]int),
	}
}

func (s *fakeQueueStore) BulkCreate(items []models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		item := items[i]
		if item.ID == "" {
			item.ID = fmt.Sprintf("item-%d", s.seq)
		}
		s.items[item.ID] = &item
		s.order[item.ID] = s.seq
		s.seq++
	}
	return nil
}

func (s *fakeQueueStore) DeleteByCampaign(campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.CampaignID == campaignID {
			delete(s.items, id)
			delete(s.order, id)
		}
	}
	return nil
}

func (s *fakeQueueStore) sorted(filter func(*models.QueueItem) bool) []models.QueueItem {
	var result []models.QueueItem
	for _, item := range s.items {
		if filter(item) {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result
}

func (s *fakeQueueStore) FetchPending(campaignID, profileID string, limit int) ([]models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.sorted(func(item *models.QueueItem) bool {
		return item.CampaignID == campaignID && item.Status == models.QueueItemPending &&
			item.ProfileID != nil && *item.ProfileID == profileID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeQueueStore) MarkProcessing(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if ok && item.Status == models.QueueItemPending {
		item.Status = models.QueueItemProcessing
		item.UpdatedAt = time.Now()
	}
	return nil
}

func (s *fakeQueueStore) MarkResult(itemID, status, channel, errorMessage string, retryCount int, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.Status = status
	item.ErrorMessage = errorMessage
	item.RetryCount = retryCount
	if channel != "" {
		ch := channel
		item.Channel = &ch
	}
	if sentAt != nil {
		item.SentAt = sentAt
	}
	return nil
}

func (s *fakeQueueStore) ResetProcessing(campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.CampaignID == campaignID && item.Status == models.QueueItemProcessing {
			item.Status = models.QueueItemPending
			n++
		}
	}
	return n, nil
}

func (s *fakeQueueStore) SkipProcessing(campaignID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.CampaignID == campaignID && item.Status == models.QueueItemProcessing {
			item.Status = models.QueueItemSkipped
			item.ErrorMessage = reason
			n++
		}
	}
	return n, nil
}

func (s *fakeQueueStore) ResetStaleProcessing(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.Status == models.QueueItemProcessing && item.UpdatedAt.Before(olderThan) {
			item.Status = models.QueueItemPending
			n++
		}
	}
	return n, nil
}

func (s *fakeQueueStore) CountsByCampaign(campaignID string) (models.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.QueueCounts
	for _, item := range s.items {
		if item.CampaignID != campaignID {
			continue
		}
		switch item.Status {
		case models.QueueItemPending:
			counts.Pending++
		case models.QueueItemProcessing:
			counts.Processing++
		case models.QueueItemSent:
			counts.Sent++
		case models.QueueItemFailed:
			counts.Failed++
		case models.QueueItemSkipped:
			counts.Skipped++
		}
	}
	return counts, nil
}

func (s *fakeQueueStore) CountRemaining(campaignID string) (int64, error) {
	counts, _ := s.CountsByCampaign(campaignID)
	return counts.Pending + counts.Processing, nil
}

func (s *fakeQueueStore) PendingIDsByProfile(campaignID, profileID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.sorted(func(item *models.QueueItem) bool {
		return item.CampaignID == campaignID && item.Status == models.QueueItemPending &&
			item.ProfileID != nil && *item.ProfileID == profileID
	})
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (s *fakeQueueStore) Reassign(itemIDs []string, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range itemIDs {
		if item, ok := s.items[id]; ok {
			p := profileID
			item.ProfileID = &p
		}
	}
	return nil
}

func (s *fakeQueueStore) DistributionByCampaign(campaignID string) ([]models.ProfileDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byProfile := make(map[string]*models.ProfileDistribution)
	for _, item := range s.items {
		if item.CampaignID != campaignID || item.ProfileID == nil {
			continue
		}
		dist, ok := byProfile[*item.ProfileID]
		if !ok {
			dist = &models.ProfileDistribution{ProfileID: *item.ProfileID}
			byProfile[*item.ProfileID] = dist
		}
		switch item.Status {
		case models.QueueItemPending:
			dist.Pending++
		case models.QueueItemProcessing:
			dist.Processing++
		case models.QueueItemSent:
			dist.Sent++
		case models.QueueItemFailed:
			dist.Failed++
		case models.QueueItemSkipped:
			dist.Skipped++
		}
	}
	var result []models.ProfileDistribution
	for _, dist := range byProfile {
		result = append(result, *dist)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProfileID < result[j].ProfileID })
	return result, nil
}

type fakeContactStore struct {
	mu        sync.Mutex
	contacts  []models.Contact
	messaged  map[string]time.Time
	validitys map[string]string
}

func newFakeContactStore(contacts ...models.Contact) *fakeContactStore {
	return &fakeContactStore{
		contacts:  contacts,
		messaged:  make(map[string]time.Time),
		validitys: make(map[string]string),
	}
}

func (s *fakeContactStore) ListEligible(filter models.ContactFilter, channel string, now time.Time) ([]models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []string{models.ContactStatusActive}
	}
	var result []models.Contact
	for _, c := range s.contacts {
		if !containsString(statuses, c.Status) {
			continue
		}
		if len(filter.Regions) > 0 && !containsString(filter.Regions, c.Region) {
			continue
		}
		if filter.CooldownDays > 0 && c.LastMessagedAt != nil &&
			!c.LastMessagedAt.Before(now.AddDate(0, 0, -filter.CooldownDays)) {
			continue
		}
		switch channel {
		case models.ChannelWhatsapp:
			if c.WhatsappValidity < 0 {
				continue
			}
		case models.ChannelTelegram:
			if c.TelegramValidity < 0 {
				continue
			}
		default:
			if c.WhatsappValidity < 0 && c.TelegramValidity < 0 {
				continue
			}
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *fakeContactStore) TouchLastMessaged(contactID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messaged[contactID] = at
	return nil
}

func (s *fakeContactStore) UpdateValidity(contactID, channel string, validity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validitys[contactID] = fmt.Sprintf("%s=%d", channel, validity)
	return nil
}

type fakeAssignmentStore struct {
	mu   sync.Mutex
	rows []*models.ProfileAssignment
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{}
}

func (s *fakeAssignmentStore) ReplaceForCampaign(campaignID string, assignments []models.ProfileAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.ProfileAssignment
	for _, row := range s.rows {
		if row.CampaignID != campaignID {
			kept = append(kept, row)
		}
	}
	for i := range assignments {
		row := assignments[i]
		kept = append(kept, &row)
	}
	s.rows = kept
	return nil
}

func (s *fakeAssignmentStore) ListByCampaign(campaignID string) ([]models.ProfileAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.ProfileAssignment
	for _, row := range s.rows {
		if row.CampaignID == campaignID {
			result = append(result, *row)
		}
	}
	return result, nil
}

func (s *fakeAssignmentStore) IncrementCounters(campaignID, profileID string, processed, success, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.CampaignID == campaignID && row.ProfileID == profileID {
			row.ProcessedCount += processed
			row.SuccessCount += success
			row.FailedCount += failed
		}
	}
	return nil
}

func (s *fakeAssignmentStore) AddAssigned(campaignID, profileID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.CampaignID == campaignID && row.ProfileID == profileID {
			row.AssignedCount += delta
		}
	}
	return nil
}

func (s *fakeAssignmentStore) UpdateStatus(campaignID, profileID, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.CampaignID == campaignID && row.ProfileID == profileID {
			row.Status = status
			if lastError != "" {
				row.LastError = lastError
			}
		}
	}
	return nil
}

type fakeProfileStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{statuses: make(map[string]string)}
}

func (s *fakeProfileStore) GetByID(id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[id]
	if !ok {
		status = models.ProfileStatusActive
	}
	return &models.Profile{ID: id, Status: status}, nil
}

func (s *fakeProfileStore) UpdateStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *fakeProfileStore) TouchLastSeen(id string, at time.Time) error {
	return nil
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []models.CampaignLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{}
}

func (s *fakeLogStore) Create(log *models.CampaignLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := *log
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeLogStore) ListByCampaign(campaignID string, limit, offset int) ([]models.CampaignLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.CampaignLog
	for _, e := range s.entries {
		if e.CampaignID == campaignID {
			result = append(result, e)
		}
	}
	return result, int64(len(result)), nil
}

func (s *fakeLogStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.CampaignLog
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

func (s *fakeLogStore) actions(campaignID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var actions []string
	for _, e := range s.entries {
		if e.CampaignID == campaignID {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

// fakeEventSink records every published event
type fakeEventSink struct {
	mu          sync.Mutex
	statuses    []models.StatusEvent
	progress    []models.ProgressEvent
	messages    []models.MessageEvent
	errors      []models.ErrorEvent
	completions []models.CompletionEvent
}

func newFakeEventSink() *fakeEventSink {
	return &fakeEventSink{}
}

func (s *fakeEventSink) PublishStatus(event models.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, event)
}

func (s *fakeEventSink) PublishProgress(event models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, event)
}

func (s *fakeEventSink) PublishMessage(event models.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, event)
}

func (s *fakeEventSink) PublishError(event models.ErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, event)
}

func (s *fakeEventSink) PublishCompletion(event models.CompletionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, event)
}

func (s *fakeEventSink) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1].Status
}

// fakeMessenger delegates to a configurable send function
type fakeMessenger struct {
	mu    sync.Mutex
	sends []SendRequest
	fn    func(req SendRequest) error
}

func newFakeMessenger(fn func(req SendRequest) error) *fakeMessenger {
	return &fakeMessenger{fn: fn}
}

func (m *fakeMessenger) Send(ctx context.Context, req SendRequest) error {
	m.mu.Lock()
	m.sends = append(m.sends, req)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(req)
	}
	return nil
}

func (m *fakeMessenger) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var phones []string
	for _, s := range m.sends {
		phones = append(phones, s.Phone)
	}
	return phones
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
