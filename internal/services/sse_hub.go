package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SSEHub manages Server-Sent Events connections for live campaign
// monitoring. Clients subscribe per campaign.
type SSEHub struct {
	clients map[string]map[chan []byte]bool
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]map[chan []byte]bool),
	}
}

// RegisterClient registers a new SSE client for a campaign
func (h *SSEHub) RegisterClient(campaignID string) chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientChan := make(chan []byte, 16)
	if h.clients[campaignID] == nil {
		h.clients[campaignID] = make(map[chan []byte]bool)
	}
	h.clients[campaignID][clientChan] = true

	logrus.Infof("SSE client registered for campaign %s (total clients: %d)", campaignID, len(h.clients[campaignID]))
	return clientChan
}

// UnregisterClient unregisters an SSE client
func (h *SSEHub) UnregisterClient(campaignID string, clientChan chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[campaignID] != nil {
		delete(h.clients[campaignID], clientChan)
		close(clientChan)

		if len(h.clients[campaignID]) == 0 {
			delete(h.clients, campaignID)
		}
	}

	logrus.Infof("SSE client unregistered for campaign %s (remaining clients: %d)", campaignID, len(h.clients[campaignID]))
}

// Broadcast sends a typed event to all clients subscribed to the campaign
func (h *SSEHub) Broadcast(campaignID, event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[campaignID]
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("Failed to marshal %s event for SSE: %v", event, err)
		return
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event, string(data))

	// Non-blocking send; slow clients drop events rather than stall
	// the workers
	for clientChan := range clients {
		select {
		case clientChan <- []byte(message):
		default:
			logrus.Warnf("SSE client channel full, skipping: campaign %s", campaignID)
		}
	}
}

// GetClientCount returns the number of clients for a campaign
func (h *SSEHub) GetClientCount(campaignID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[campaignID])
}

// SendHeartbeat sends a comment frame to keep connections alive
func (h *SSEHub) SendHeartbeat(campaignID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, exists := h.clients[campaignID]
	if !exists {
		return
	}

	heartbeat := fmt.Sprintf(": heartbeat %s\n\n", time.Now().Format(time.RFC3339))
	for clientChan := range clients {
		select {
		case clientChan <- []byte(heartbeat):
		default:
		}
	}
}
