package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/pkg/config"
)

var ErrNotConfigured = &AssistantError{"assistant API key is not configured"}

// AssistantError represents an assistant error
type AssistantError struct {
	msg string
}

func (e *AssistantError) Error() string {
	return e.msg
}

// Message is one turn in a chat history.
type Message struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Client talks to a Gemini-style generateContent endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	prompt      string
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient creates an assistant client from configuration.
func NewClient(cfg config.AssistantConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		prompt:      cfg.Prompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// apiPart, apiContent etc. mirror the generateContent request/response shapes.
type apiPart struct {
	Text string `json:"text"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type apiRequest struct {
	SystemInstruction *apiContent         `json:"system_instruction,omitempty"`
	Contents          []apiContent        `json:"contents"`
	GenerationConfig  apiGenerationConfig `json:"generationConfig"`
}

type apiResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the history plus a new question and returns the model reply.
// The system instruction is seeded with the latest sensor snapshot and
// profile so answers can reference current conditions.
func (c *Client) Chat(ctx context.Context, history []Message, question string, snapshot *telemetry.Snapshot, prof *profile.Profile) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	req := apiRequest{
		SystemInstruction: &apiContent{
			Parts: []apiPart{{Text: c.buildSystemPrompt(snapshot, prof)}},
		},
		GenerationConfig: apiGenerationConfig{Temperature: c.temperature},
	}

	for _, m := range history {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		req.Contents = append(req.Contents, apiContent{
			Role:  role,
			Parts: []apiPart{{Text: m.Text}},
		})
	}
	req.Contents = append(req.Contents, apiContent{
		Role:  "user",
		Parts: []apiPart{{Text: question}},
	})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("assistant API error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return "", fmt.Errorf("assistant API returned status %d", resp.StatusCode)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("assistant returned no candidates")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	c.logger.Debug().
		Int("history_len", len(history)).
		Int("reply_len", sb.Len()).
		Msg("Assistant reply generated")

	return sb.String(), nil
}

func (c *Client) buildSystemPrompt(snapshot *telemetry.Snapshot, prof *profile.Profile) string {
	var sb strings.Builder
	sb.WriteString(c.prompt)
	sb.WriteString("\n\n")

	if prof != nil {
		if prof.PlantName != "" {
			fmt.Fprintf(&sb, "The plant being monitored is: %s.\n", prof.PlantName)
		}
		if prof.PlantingDate != nil {
			days := profile.DaysSincePlanting(*prof.PlantingDate, time.Now())
			fmt.Fprintf(&sb, "It was planted %d days ago.\n", days)
		}
	}

	if snapshot == nil {
		sb.WriteString("No sensor readings are available right now.\n")
		return sb.String()
	}

	if !snapshot.Online {
		sb.WriteString("The monitoring device is currently offline; the readings below may be stale.\n")
	}
	if snapshot.Temperature != nil {
		fmt.Fprintf(&sb, "Current temperature: %.1f.\n", *snapshot.Temperature)
	}
	if snapshot.Humidity != nil {
		fmt.Fprintf(&sb, "Current humidity: %.1f%%.\n", *snapshot.Humidity)
	}
	fmt.Fprintf(&sb, "Readings taken at %s.\n", snapshot.FetchedAt.Format(time.RFC3339))

	return sb.String()
}
