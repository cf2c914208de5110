package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FILTER_MIN_LEN", "")
	t.Setenv("FILTER_MAX_LEN", "")
	t.Setenv("AI_TIMEOUT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FilterMinLen != 2 || cfg.FilterMaxLen != 200 {
		t.Errorf("unexpected default length bounds: %d..%d", cfg.FilterMinLen, cfg.FilterMaxLen)
	}
	if cfg.HistoryCapacity != 100 {
		t.Errorf("expected default history capacity 100, got %d", cfg.HistoryCapacity)
	}
	if cfg.SeenCapacity != 1000 {
		t.Errorf("expected default seen capacity 1000, got %d", cfg.SeenCapacity)
	}
	if cfg.AITimeout != 30*time.Second {
		t.Errorf("expected default AI timeout 30s, got %v", cfg.AITimeout)
	}
	if cfg.FallbackReply == "" {
		t.Errorf("expected a non-empty default fallback reply")
	}
	if len(cfg.FilterKeywords) == 0 {
		t.Errorf("expected default keyword list")
	}
}

func TestLoadInvalidBounds(t *testing.T) {
	t.Setenv("FILTER_MIN_LEN", "10")
	t.Setenv("FILTER_MAX_LEN", "5")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for inverted length bounds")
	}
}

func TestLoadKeywordOverride(t *testing.T) {
	t.Setenv("FILTER_KEYWORDS", "scam, giveaway ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.FilterKeywords) != 2 || cfg.FilterKeywords[0] != "scam" || cfg.FilterKeywords[1] != "giveaway" {
		t.Errorf("unexpected keywords: %v", cfg.FilterKeywords)
	}
}

func TestValidateFeedReady(t *testing.T) {
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateFeedReady(); err != nil {
		t.Errorf("expected valid feed config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_OAUTH_TOKEN"); err != nil {
		t.Fatalf("failed to unset TWITCH_OAUTH_TOKEN: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateFeedReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
