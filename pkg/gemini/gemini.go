// Package gemini wraps the Google Gemini SDK for short chat completions.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	// ErrNotConfigured is returned when no API key was given
	ErrNotConfigured = errors.New("gemini API key is not configured")
	// ErrEmptyCompletion is returned when the model produced no text
	ErrEmptyCompletion = errors.New("model returned an empty completion")
)

// Turn is one prior message of a conversation
type Turn struct {
	// Role is "user" or "assistant"
	Role string
	Text string
}

// Client generates replies with one Gemini model
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// New creates a client; it fails with ErrNotConfigured when apiKey is empty
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client:      c,
		model:       model,
		temperature: 0.7,
		timeout:     30 * time.Second,
	}, nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate answers prompt given an optional system instruction and history
func (c *Client) Generate(ctx context.Context, system string, history []Turn, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	var pending []genai.Part
	session.History, pending = buildHistory(history)

	resp, err := session.SendMessage(ctx, append(pending, genai.Text(prompt))...)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return extractText(resp)
}

// buildHistory maps turns onto Gemini roles. The API wants a history that
// starts with a user turn and alternates, so empty turns are skipped,
// leading model turns dropped and consecutive turns of one role merged.
// A trailing user turn has no answer yet; its parts are returned as pending
// so they can be sent together with the new prompt.
func buildHistory(turns []Turn) ([]*genai.Content, []genai.Part) {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := "user"
		if t.Role == "assistant" || t.Role == "model" {
			role = "model"
		}
		if len(history) == 0 && role == "model" {
			continue
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(t.Text))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}

	if n := len(history); n > 0 && history[n-1].Role == "user" {
		return history[:n-1], history[n-1].Parts
	}
	return history, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
