package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/waclaw/pkg/llm"
)

func newTestClient(baseURL string) *Client {
	return New(&llm.Config{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "gpt-4o-mini",
		MaxTokens: 256,
	})
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model     string        `json:"model"`
			Messages  []llm.Message `json:"messages"`
			MaxTokens int           `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o-mini" || req.MaxTokens != 256 {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hi!"}},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Complete(context.Background(), []llm.Message{
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi!" {
		t.Errorf("expected content, got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("expected usage carried through, got %+v", resp.Usage)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), []llm.Message{
		{Role: "user", Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected api message surfaced, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), []llm.Message{
		{Role: "user", Content: "hello"},
	})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected empty-choices error, got %v", err)
	}
}
