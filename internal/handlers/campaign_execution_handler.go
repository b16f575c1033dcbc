package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/internal/services"
)

// CampaignExecutionHandler exposes the campaign lifecycle and monitoring
// endpoints
type CampaignExecutionHandler struct {
	executor *services.CampaignExecutor
	tracker  *services.ProgressTracker
	queue    services.QueueStore
	logs     services.LogStore
	sseHub   *services.SSEHub
}

func NewCampaignExecutionHandler(executor *services.CampaignExecutor, tracker *services.ProgressTracker, queue services.QueueStore, logs services.LogStore, sseHub *services.SSEHub) *CampaignExecutionHandler {
	return &CampaignExecutionHandler{
		executor: executor,
		tracker:  tracker,
		queue:    queue,
		logs:     logs,
		sseHub:   sseHub,
	}
}

// QueueCampaign godoc
// @Summary Build the send queue for a campaign
// @Description Selects the audience and distributes it across the campaign's active profiles
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/queue [post]
func (h *CampaignExecutionHandler) QueueCampaign(c *gin.Context) {
	campaign, err := h.executor.Queue(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign queued",
		"campaign": campaign,
	})
}

// StartCampaign godoc
// @Summary Start a queued campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/start [post]
func (h *CampaignExecutionHandler) StartCampaign(c *gin.Context) {
	campaign, err := h.executor.Start(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign started",
		"campaign": campaign,
	})
}

// PauseCampaign godoc
// @Summary Pause a running campaign
// @Description Stops the workers, waits for them to drain and returns in-flight items to pending
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/pause [post]
func (h *CampaignExecutionHandler) PauseCampaign(c *gin.Context) {
	campaign, err := h.executor.Pause(c.Param("id"), "paused by operator", false)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign paused",
		"campaign": campaign,
	})
}

// ResumeCampaign godoc
// @Summary Resume a paused campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/resume [post]
func (h *CampaignExecutionHandler) ResumeCampaign(c *gin.Context) {
	campaign, err := h.executor.Resume(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign resumed",
		"campaign": campaign,
	})
}

// CancelCampaign godoc
// @Summary Cancel a campaign
// @Description Stops the workers and skips all unprocessed items
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/cancel [post]
func (h *CampaignExecutionHandler) CancelCampaign(c *gin.Context) {
	campaign, err := h.executor.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign cancelled",
		"campaign": campaign,
	})
}

// GetProgress godoc
// @Summary Get a progress snapshot
// @Description Returns counters, percent, speed (contacts/min) and ETA
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.ProgressEvent
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/progress [get]
func (h *CampaignExecutionHandler) GetProgress(c *gin.Context) {
	snapshot, err := h.tracker.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetDistribution godoc
// @Summary Get the per-profile queue breakdown
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/distribution [get]
func (h *CampaignExecutionHandler) GetDistribution(c *gin.Context) {
	campaignID := c.Param("id")
	distribution, err := h.queue.DistributionByCampaign(campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load distribution"})
		return
	}
	counts, err := h.queue.CountsByCampaign(campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"campaign_id":  campaignID,
		"totals":       counts,
		"distribution": distribution,
	})
}

// GetLogs godoc
// @Summary List campaign audit logs
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/logs [get]
func (h *CampaignExecutionHandler) GetLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.logs.ListByCampaign(c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// StreamEvents godoc
// @Summary Subscribe to live campaign events
// @Description Server-Sent Events stream of status, progress, message, error and completion events
// @Tags campaigns
// @Produce text/event-stream
// @Param id path string true "Campaign ID"
// @Success 200 "SSE stream"
// @Router /api/v1/campaigns/{id}/events [get]
func (h *CampaignExecutionHandler) StreamEvents(c *gin.Context) {
	campaignID := c.Param("id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable buffering for nginx

	clientChan := h.sseHub.RegisterClient(campaignID)
	defer h.sseHub.UnregisterClient(campaignID, clientChan)

	c.SSEvent("connected", gin.H{
		"campaign_id": campaignID,
		"message":     "Connected to campaign event stream",
	})
	c.Writer.Flush()

	// Initial snapshot so clients render without waiting for the next
	// result
	if snapshot, err := h.tracker.Snapshot(campaignID); err == nil {
		c.SSEvent("progress", snapshot)
		c.Writer.Flush()
	}

	for {
		select {
		case <-c.Request.Context().Done():
			logrus.Infof("SSE client disconnected: campaign %s", campaignID)
			return
		case message, ok := <-clientChan:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(message); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
