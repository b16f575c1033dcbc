package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// AutomationClient is the HTTP bridge to the browser-automation backend
// that owns the actual messenger sessions. It implements Messenger and
// ProfileLauncher.
type AutomationClient struct {
	baseURL string
	client  *http.Client
}

func NewAutomationClient(baseURL string, timeout time.Duration) *AutomationClient {
	return &AutomationClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send delivers one message through a profile's messenger session
func (c *AutomationClient) Send(ctx context.Context, req SendRequest) error {
	requestBody := map[string]interface{}{
		"profile_id":      req.ProfileID,
		"channel":         req.Channel,
		"phone":           req.Phone,
		"message":         req.Message,
		"simulate_typing": req.SimulateTyping,
		"typing_delay_ms": req.TypingDelayMs,
	}

	apiURL := fmt.Sprintf("%s/api/v1/messenger/send", c.baseURL)
	return c.post(ctx, apiURL, requestBody)
}

// Launch opens the browser profile on the automation backend
func (c *AutomationClient) Launch(ctx context.Context, profileID string) error {
	apiURL := fmt.Sprintf("%s/api/v1/profiles/%s/launch", c.baseURL, profileID)
	return c.post(ctx, apiURL, map[string]interface{}{})
}

// Shutdown closes the browser profile
func (c *AutomationClient) Shutdown(ctx context.Context, profileID string) error {
	apiURL := fmt.Sprintf("%s/api/v1/profiles/%s/shutdown", c.baseURL, profileID)
	return c.post(ctx, apiURL, map[string]interface{}{})
}

func (c *AutomationClient) post(ctx context.Context, apiURL string, body map[string]interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Nova-Sender/1.0")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Connection-level failures mean nobody can send
		return fmt.Errorf("%w: %v", ErrAutomationDown, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.mapError(resp.StatusCode, bodyBytes)
}

// mapError translates backend error responses into the send taxonomy.
// The backend reports a machine-readable code alongside the message.
func (c *AutomationClient) mapError(statusCode int, body []byte) error {
	var errorResp struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	detail := string(body)
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorResp.Error != "" {
			detail = errorResp.Error
		} else if errorResp.Message != "" {
			detail = errorResp.Message
		}
	}

	logrus.Errorf("Automation backend returned status %d: %s", statusCode, detail)

	switch errorResp.Code {
	case "invalid_recipient", "not_registered":
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, detail)
	case "profile_logged_out", "profile_banned", "session_expired":
		return fmt.Errorf("%w: %s", ErrProfileUnavailable, detail)
	case "rate_limited":
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrProfileUnavailable, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrAutomationDown, statusCode, detail)
	}
	return fmt.Errorf("automation backend returned status %d: %s", statusCode, detail)
}
