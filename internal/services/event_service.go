package services

import (
	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/models"
)

// notifier is the broker-facing slice of RabbitMQService
type notifier interface {
	PublishMessage(queueName string, message interface{}) error
}

// EventService fans campaign events out to the SSE hub and the
// notification queue. Broker publishes are fire-and-forget: a down
// broker must never block or fail campaign execution.
type EventService struct {
	hub      *SSEHub
	notifier notifier
}

func NewEventService(hub *SSEHub, n notifier) *EventService {
	return &EventService{hub: hub, notifier: n}
}

func (s *EventService) PublishStatus(event models.StatusEvent) {
	s.hub.Broadcast(event.CampaignID, models.EventStatus, event)
	s.notify(models.EventStatus, event)
}

func (s *EventService) PublishProgress(event models.ProgressEvent) {
	// Progress is high-volume; SSE only. Consumers that need durable
	// progress read the counters from the API.
	s.hub.Broadcast(event.CampaignID, models.EventProgress, event)
}

func (s *EventService) PublishMessage(event models.MessageEvent) {
	s.hub.Broadcast(event.CampaignID, models.EventMessage, event)
}

func (s *EventService) PublishError(event models.ErrorEvent) {
	s.hub.Broadcast(event.CampaignID, models.EventError, event)
	s.notify(models.EventError, event)
}

func (s *EventService) PublishCompletion(event models.CompletionEvent) {
	s.hub.Broadcast(event.CampaignID, models.EventCompletion, event)
	s.notify(models.EventCompletion, event)
}

func (s *EventService) notify(eventType string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	message := map[string]interface{}{
		"event":   eventType,
		"payload": payload,
	}
	if err := s.notifier.PublishMessage(NotificationQueue, message); err != nil {
		logrus.Warnf("[Events] Failed to publish %s notification: %v", eventType, err)
	}
}
