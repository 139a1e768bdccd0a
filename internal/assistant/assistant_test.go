package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/pkg/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.AssistantConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "gemini-1.5-flash",
		Temperature: 0.7,
		Prompt:      "You are a plant-care assistant.",
	}, zerolog.Nop())
}

func floatPtr(v float64) *float64 { return &v }

func fakeModelServer(t *testing.T, reply string, captured *apiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "gemini-1.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key in query: %s", r.URL.RawQuery)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": reply}},
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestChatReturnsModelReply(t *testing.T) {
	srv := fakeModelServer(t, "Your basil looks happy.", nil)
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Chat(context.Background(), nil, "How is my plant?", nil, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "Your basil looks happy." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestChatSeedsSensorContext(t *testing.T) {
	var captured apiRequest
	srv := fakeModelServer(t, "ok", &captured)
	defer srv.Close()

	planted := time.Now().AddDate(0, 0, -10)
	prof := &profile.Profile{
		UserID:       "user-1",
		PlantName:    "Basil",
		PlantingDate: &planted,
	}
	snapshot := &telemetry.Snapshot{
		Online:      true,
		Temperature: floatPtr(24.5),
		Humidity:    floatPtr(55),
		FetchedAt:   time.Now(),
	}

	c := newTestClient(srv.URL)
	if _, err := c.Chat(context.Background(), nil, "status?", snapshot, prof); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if captured.SystemInstruction == nil || len(captured.SystemInstruction.Parts) == 0 {
		t.Fatal("no system instruction sent")
	}
	sys := captured.SystemInstruction.Parts[0].Text
	for _, want := range []string{"Basil", "planted 10 days ago", "24.5", "55.0%"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q:\n%s", want, sys)
		}
	}
}

func TestChatSendsHistoryThenQuestion(t *testing.T) {
	var captured apiRequest
	srv := fakeModelServer(t, "ok", &captured)
	defer srv.Close()

	history := []Message{
		{Role: "user", Text: "hello"},
		{Role: "model", Text: "hi there"},
	}

	c := newTestClient(srv.URL)
	if _, err := c.Chat(context.Background(), history, "follow-up", nil, nil); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if len(captured.Contents) != 3 {
		t.Fatalf("expected 3 content turns, got %d", len(captured.Contents))
	}
	if captured.Contents[0].Role != "user" || captured.Contents[1].Role != "model" {
		t.Errorf("history roles not preserved: %q, %q", captured.Contents[0].Role, captured.Contents[1].Role)
	}
	last := captured.Contents[2]
	if last.Role != "user" || last.Parts[0].Text != "follow-up" {
		t.Errorf("question not last: %+v", last)
	}
}

func TestChatNotesOfflineDevice(t *testing.T) {
	var captured apiRequest
	srv := fakeModelServer(t, "ok", &captured)
	defer srv.Close()

	snapshot := &telemetry.Snapshot{
		Online:      false,
		Temperature: floatPtr(20),
		FetchedAt:   time.Now(),
	}

	c := newTestClient(srv.URL)
	if _, err := c.Chat(context.Background(), nil, "status?", snapshot, nil); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	sys := captured.SystemInstruction.Parts[0].Text
	if !strings.Contains(sys, "offline") {
		t.Errorf("system prompt should mention the offline device:\n%s", sys)
	}
}

func TestChatErrorsWithoutAPIKey(t *testing.T) {
	c := NewClient(config.AssistantConfig{BaseURL: "http://unused", Model: "m"}, zerolog.Nop())

	_, err := c.Chat(context.Background(), nil, "hi", nil, nil)
	if err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestChatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 400, "message": "API key not valid"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), nil, "hi", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("expected API error message, got %v", err)
	}
}
