// Package ai implements the outbound call to an upstream AI relay endpoint
// (a "forwarder") and parsing of its reply envelope.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedReply signals a 2xx response whose body does not carry the
// expected reply envelope. It is a protocol error and triggers failover just
// like a transport failure.
var ErrMalformedReply = errors.New("malformed relay reply")

// Reply is the parsed persona response.
type Reply struct {
	Content string `json:"content"`
	Emotion string `json:"emotion"`
}

// Message is one prior chat turn serialized into the prompt context.
// The relay contract uses the literal "chat message" key.
type Message struct {
	Name string `json:"name"`
	Chat string `json:"chat message"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type relayRequest struct {
	SystemInstruction string           `json:"systemInstruction"`
	Contents          []relayContent   `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type relayContent struct {
	Text string `json:"text"`
}

// relayResponse mirrors the Gemini-shaped envelope the forwarders proxy back.
type relayResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client calls the /ai-api endpoint on whichever forwarder URL it is handed.
// Timeout bounds every call; a hung upstream must not stall the queue.
type Client struct {
	HTTPClient        *http.Client
	SystemInstruction string
	Timeout           time.Duration
}

func NewClient(systemInstruction string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient:        &http.Client{},
		SystemInstruction: systemInstruction,
		Timeout:           timeout,
	}
}

// Generate posts the history snapshot to the relay at baseURL and returns the
// parsed persona reply.
func (c *Client) Generate(ctx context.Context, baseURL string, history []Message) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal history: %w", err)
	}
	body, err := json.Marshal(relayRequest{
		SystemInstruction: c.SystemInstruction,
		Contents:          []relayContent{{Text: string(historyJSON)}},
		GenerationConfig:  generationConfig{Temperature: 0.9, MaxOutputTokens: 256},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/ai-api", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("relay call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Reply{}, fmt.Errorf("relay status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return Reply{}, fmt.Errorf("%w: empty candidates", ErrMalformedReply)
	}
	inner := stripCodeFence(envelope.Candidates[0].Content.Parts[0].Text)
	var reply Reply
	if err := json.Unmarshal([]byte(inner), &reply); err != nil {
		return Reply{}, fmt.Errorf("%w: inner payload: %v", ErrMalformedReply, err)
	}
	if reply.Content == "" {
		return Reply{}, fmt.Errorf("%w: empty content", ErrMalformedReply)
	}
	return reply, nil
}

// stripCodeFence removes a surrounding markdown fence some models wrap their
// JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
