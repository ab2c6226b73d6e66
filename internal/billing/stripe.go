// Package billing implements the subscription oracle against the Stripe API.
// It answers one question: does this phone number belong to a customer with
// an active subscription right now. Customer matching is an exact phone
// lookup; no fuzzy heuristics.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/waclaw/internal/types"
)

// Client queries Stripe for subscription entitlement.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Stripe-backed oracle. baseURL is overridable for tests;
// the empty string means api.stripe.com.
func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type customerSearchResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type subscriptionListResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// IsEntitled reports whether the phone number maps to a Stripe customer with
// an active or trialing subscription. An unknown customer is (false, nil).
func (c *Client) IsEntitled(ctx context.Context, waID types.WaID) (bool, error) {
	customerID, err := c.findCustomer(ctx, waID)
	if err != nil {
		return false, err
	}
	if customerID == "" {
		return false, nil
	}
	return c.hasActiveSubscription(ctx, customerID)
}

func (c *Client) findCustomer(ctx context.Context, waID types.WaID) (string, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("phone:%s", strconv.Quote("+"+string(waID))))
	q.Set("limit", "1")

	var parsed customerSearchResponse
	if err := c.get(ctx, "/v1/customers/search?"+q.Encode(), &parsed); err != nil {
		return "", fmt.Errorf("search customer: %w", err)
	}
	if len(parsed.Data) == 0 {
		return "", nil
	}
	return parsed.Data[0].ID, nil
}

func (c *Client) hasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("limit", "10")

	var parsed subscriptionListResponse
	if err := c.get(ctx, "/v1/subscriptions?"+q.Encode(), &parsed); err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range parsed.Data {
		if sub.Status == "active" || sub.Status == "trialing" {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stripe error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
