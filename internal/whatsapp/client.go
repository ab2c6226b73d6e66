// Package whatsapp talks to the WhatsApp Cloud API: outbound text delivery
// plus webhook payload decoding and signature verification.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/waclaw/internal/types"
)

// Client sends messages through the Cloud API /messages endpoint.
type Client struct {
	accessToken   string
	phoneNumberID string
	apiVersion    string
	baseURL       string
	httpClient    *http.Client
}

// NewClient creates an outbound messenger. baseURL is overridable for tests;
// the empty string means graph.facebook.com.
func NewClient(accessToken, phoneNumberID, apiVersion, baseURL string) *Client {
	if apiVersion == "" {
		apiVersion = "v20.0"
	}
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		apiVersion:    apiVersion,
		baseURL:       baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send delivers a text message to the user. Failures come back as a
// *types.DeliveryError.
func (c *Client) Send(ctx context.Context, waID types.WaID, text string) error {
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)

	reqBody := map[string]any{
		"messaging_product": "whatsapp",
		"to":                string(waID),
		"type":              "text",
		"text": map[string]any{
			"body": text,
		},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return &types.DeliveryError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return &types.DeliveryError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &types.DeliveryError{
			Err: fmt.Errorf("whatsapp api status %d: %s", resp.StatusCode, string(body)),
		}
	}
	return nil
}
