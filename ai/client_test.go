package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func relayBody(t *testing.T, inner string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": inner}}}},
		},
	})
	if err != nil {
		t.Fatalf("marshal relay body: %v", err)
	}
	return b
}

func TestGenerate(t *testing.T) {
	var gotPath string
	var gotReq relayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(relayBody(t, `{"content":"Hi alice, welcome!","emotion":"happy"}`))
	}))
	defer srv.Close()

	c := NewClient("be a streamer", 5*time.Second)
	reply, err := c.Generate(context.Background(), srv.URL, []Message{{Name: "alice", Chat: "hello there"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotPath != "/ai-api" {
		t.Errorf("expected POST /ai-api, got %s", gotPath)
	}
	if gotReq.SystemInstruction != "be a streamer" {
		t.Errorf("system instruction not forwarded: %q", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 1 {
		t.Fatalf("expected one content block, got %d", len(gotReq.Contents))
	}
	var history []Message
	if err := json.Unmarshal([]byte(gotReq.Contents[0].Text), &history); err != nil {
		t.Fatalf("contents text is not a JSON history array: %v", err)
	}
	if len(history) != 1 || history[0].Name != "alice" || history[0].Chat != "hello there" {
		t.Errorf("unexpected history payload: %+v", history)
	}
	if reply.Content != "Hi alice, welcome!" || reply.Emotion != "happy" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestGenerateFencedInnerJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(relayBody(t, "```json\n{\"content\":\"yo\",\"emotion\":\"calm\"}\n```"))
	}))
	defer srv.Close()
	c := NewClient("sys", time.Second)
	reply, err := c.Generate(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Content != "yo" || reply.Emotion != "calm" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestGenerateMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `garbage`,
		"empty candidates": `{"candidates":[]}`,
		"inner not json":   string(relayBodyRaw(`hello, no json here`)),
		"empty content":    string(relayBodyRaw(`{"content":"","emotion":"x"}`)),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()
			c := NewClient("sys", time.Second)
			_, err := c.Generate(context.Background(), srv.URL, nil)
			if !errors.Is(err, ErrMalformedReply) {
				t.Fatalf("expected ErrMalformedReply, got %v", err)
			}
			if ClassifyRelayError(err) != ErrorClassProtocol {
				t.Errorf("expected protocol class, got %v", ClassifyRelayError(err))
			}
		})
	}
}

func relayBodyRaw(inner string) []byte {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": inner}}}},
		},
	})
	return b
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := NewClient("sys", time.Second)
	_, err := c.Generate(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatalf("expected error on 429")
	}
	if ClassifyRelayError(err) != ErrorClassRateLimited {
		t.Errorf("expected rate-limited class, got %v", ClassifyRelayError(err))
	}
}

func TestGenerateTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)
	c := NewClient("sys", 50*time.Millisecond)
	start := time.Now()
	_, err := c.Generate(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
	if ClassifyRelayError(err) != ErrorClassTransient {
		t.Errorf("expected transient class, got %v", ClassifyRelayError(err))
	}
}
