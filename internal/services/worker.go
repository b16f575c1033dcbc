package services

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// ProfileWorker is the cooperative send loop for one (campaign, profile)
// pair. It only ever touches its own queue partition, so no two workers
// compete for an item.
type ProfileWorker struct {
	campaignID string
	profileID  string

	channel       string
	channelPolicy string
	messageText   string
	pacing        models.PacingConfig

	queue        QueueStore
	messenger    Messenger
	report       func(models.ItemResult)
	pollInterval time.Duration

	paused   atomic.Bool
	stopChan chan struct{}
	stopped  atomic.Bool

	// sends completed this session, drives warmup stretching
	sessionSent int
}

func NewProfileWorker(campaign *models.Campaign, profileID string, queue QueueStore, messenger Messenger, pollInterval time.Duration, report func(models.ItemResult)) *ProfileWorker {
	return &ProfileWorker{
		campaignID:    campaign.ID,
		profileID:     profileID,
		channel:       campaign.Channel,
		channelPolicy: campaign.ChannelPolicy,
		messageText:   campaign.MessageText,
		pacing:        campaign.Pacing.Normalized(),
		queue:         queue,
		messenger:     messenger,
		report:        report,
		pollInterval:  pollInterval,
		stopChan:      make(chan struct{}),
	}
}

// Stop requests termination. The loop exits at the next item boundary;
// the in-flight send is allowed to finish.
func (w *ProfileWorker) Stop() {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.stopChan)
	}
}

// SetPaused toggles idle-wait mode without tearing the worker down
func (w *ProfileWorker) SetPaused(paused bool) {
	w.paused.Store(paused)
}

// Run drives the send loop until Stop is called. Meant to be launched as
// a goroutine; the caller owns the WaitGroup.
func (w *ProfileWorker) Run() {
	logrus.Infof("[Worker] Started for campaign %s profile %s", w.campaignID, w.profileID)
	for {
		if w.isStopped() {
			logrus.Infof("[Worker] Stopped for campaign %s profile %s", w.campaignID, w.profileID)
			return
		}
		if w.paused.Load() {
			w.idle()
			continue
		}

		items, err := w.queue.FetchPending(w.campaignID, w.profileID, w.pacing.ChunkSize)
		if err != nil {
			logrus.Errorf("[Worker] Campaign %s profile %s: failed to fetch chunk: %v", w.campaignID, w.profileID, err)
			w.idle()
			continue
		}
		if len(items) == 0 {
			w.idle()
			continue
		}

		for i, item := range items {
			if w.isStopped() || w.paused.Load() {
				break
			}
			if err := w.queue.MarkProcessing(item.ID); err != nil {
				logrus.Errorf("[Worker] Campaign %s: failed to claim item %s: %v", w.campaignID, item.ID, err)
				continue
			}

			result := w.sendItem(item)
			w.report(result)

			if result.Status != models.QueueItemSent {
				continue
			}
			w.sessionSent++
			w.pace(w.pacing.MessageDelayMinMs, w.pacing.MessageDelayMaxMs)

			// Mode 1 paces after every sent message; mode 2 only when
			// the next item targets a different contact.
			if w.pacing.PauseMode == 1 || i == len(items)-1 || items[i+1].ContactID != item.ContactID {
				w.pace(w.pacing.ContactDelayMinMs, w.pacing.ContactDelayMaxMs)
			}
		}
	}
}

// sendItem resolves the delivery channels and attempts the send. The
// "both" policy is exhaustive: every viable channel is attempted even
// after a success, and the item is sent if any attempt delivered. The
// *_first policies stop at the first delivered channel.
func (w *ProfileWorker) sendItem(item models.QueueItem) models.ItemResult {
	result := models.ItemResult{
		CampaignID: w.campaignID,
		ItemID:     item.ID,
		ProfileID:  w.profileID,
		ContactID:  item.ContactID,
		Phone:      item.Phone,
	}

	candidates := w.resolveChannels(item)
	if len(candidates) == 0 {
		result.Status = models.QueueItemSkipped
		result.Error = "contact not reachable on any campaign channel"
		return result
	}

	exhaustive := w.channelPolicy == models.ChannelPolicyBoth

	var lastErr error
	var sentVia string
	for _, channel := range candidates {
		result.Attempts++
		result.Channel = channel
		err := w.send(channel, item.Phone)
		if err == nil {
			sentVia = channel
			if !exhaustive {
				break
			}
			continue
		}
		lastErr = err
		logrus.Warnf("[Worker] Campaign %s profile %s: send to %s via %s failed: %v",
			w.campaignID, w.profileID, item.Phone, channel, err)

		// Profile- and backend-level failures abort the channel walk;
		// retrying on another channel would fail the same way.
		if errors.Is(err, ErrProfileUnavailable) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAutomationDown) {
			break
		}
	}

	if sentVia != "" {
		result.Status = models.QueueItemSent
		result.Channel = sentVia
		return result
	}
	result.Status = models.QueueItemFailed
	result.Error = lastErr.Error()
	return result
}

// resolveChannels returns the channels to attempt, in order. Validity -1
// excludes a channel; unknown passes through and the send itself decides.
func (w *ProfileWorker) resolveChannels(item models.QueueItem) []string {
	if item.Channel != nil && *item.Channel != "" && *item.Channel != models.ChannelUniversal {
		if !channelViable(*item.Channel, item) {
			return nil
		}
		return []string{*item.Channel}
	}

	var order []string
	switch w.channelPolicy {
	case models.ChannelPolicyTelegramFirst:
		order = []string{models.ChannelTelegram, models.ChannelWhatsapp}
	default: // both and whatsapp_first share the order
		order = []string{models.ChannelWhatsapp, models.ChannelTelegram}
	}

	var viable []string
	for _, ch := range order {
		if channelViable(ch, item) {
			viable = append(viable, ch)
		}
	}
	return viable
}

func channelViable(channel string, item models.QueueItem) bool {
	switch channel {
	case models.ChannelWhatsapp:
		return item.WhatsappValidity >= models.ValidityUnknown
	case models.ChannelTelegram:
		return item.TelegramValidity >= models.ValidityUnknown
	}
	return false
}

func (w *ProfileWorker) send(channel, phone string) error {
	req := SendRequest{
		ProfileID:      w.profileID,
		Channel:        channel,
		Phone:          phone,
		Message:        w.messageText,
		SimulateTyping: w.pacing.SimulateTyping,
	}
	if w.pacing.SimulateTyping {
		req.TypingDelayMs = w.randomDelayMs(w.pacing.TypingDelayMinMs, w.pacing.TypingDelayMaxMs)
	}
	return w.messenger.Send(context.Background(), req)
}

// pace sleeps a random duration in [min, max] ms, interruptible by Stop
func (w *ProfileWorker) pace(minMs, maxMs int) {
	delay := w.randomDelayMs(minMs, maxMs)
	if delay <= 0 {
		return
	}
	select {
	case <-w.stopChan:
	case <-time.After(time.Duration(delay) * time.Millisecond):
	}
}

func (w *ProfileWorker) randomDelayMs(minMs, maxMs int) int {
	delay := minMs
	if maxMs > minMs {
		delay = minMs + rand.Intn(maxMs-minMs+1)
	}
	if w.pacing.WarmupEnabled && w.sessionSent < w.pacing.WarmupMessages {
		delay = int(float64(delay) * w.pacing.WarmupFactor)
	}
	return delay
}

func (w *ProfileWorker) idle() {
	select {
	case <-w.stopChan:
	case <-time.After(w.pollInterval):
	}
}

func (w *ProfileWorker) isStopped() bool {
	return w.stopped.Load()
}
