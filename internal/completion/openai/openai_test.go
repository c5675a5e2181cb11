package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("DOCQA_TEST_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "DOCQA_TEST_KEY", Model: "gpt-4"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestComplete_SendsMessages(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"The sky is blue [1]."}}]}`))
	})
	out, err := c.Complete(context.Background(), domain.CompletionRequest{System: "sys", User: "usr", Temperature: 0.1, MaxTokens: 1000})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "The sky is blue [1]." {
		t.Fatalf("unexpected answer %q", out)
	}
	if body.Model != "gpt-4" || body.MaxTokens != 1000 || body.Temperature != 0.1 {
		t.Fatalf("unexpected request %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Content != "usr" {
		t.Fatalf("unexpected messages %+v", body.Messages)
	}
}

func TestComplete_ErrorIsProviderFailure(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{System: "s", User: "u"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !strings.Contains(err.Error(), "openai complete") {
		t.Fatalf("expected provider context in error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})
	if _, err := c.Complete(context.Background(), domain.CompletionRequest{}); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}
