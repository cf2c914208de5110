// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., Twitch chat), use ValidateFeedReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch (inbound chat feed)
	TwitchBotUsername string
	TwitchOAuthToken  string

	// Initial room to join on boot; empty means start idle.
	InitialRoom string

	// AI relay
	AISystemInstruction string
	AITimeout           time.Duration
	FallbackReply       string

	// TTS
	TTSVoice  string
	TTSEngine string

	// Filter policy. These are product knobs, not invariants; the defaults
	// mirror the strictest observed policy.
	FilterMinLen       int
	FilterMaxLen       int
	FilterKeywords     []string
	FilterPromoEnabled bool
	FilterRequireAlnum bool
	SeenCapacity       int
	HistoryCapacity    int

	// Whether a job still in flight when the room switches should have its
	// broadcast discarded once it completes.
	DiscardStaleBroadcasts bool
}

// defaultKeywords are spam/scam markers suppressed regardless of promo policy.
var defaultKeywords = []string{"pump my", "rugged", "presale", "airdrop", "free sol", "t.me/"}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds
// are missing; use ValidateFeedReady() when you require the live feed. Missing optional
// variables disable features (e.g., TTS falls back to text-only broadcasts).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.InitialRoom = os.Getenv("INITIAL_ROOM")

	cfg.AISystemInstruction = os.Getenv("AI_SYSTEM_INSTRUCTION")
	if cfg.AISystemInstruction == "" {
		cfg.AISystemInstruction = `You are a live streamer persona. Reply to the most recent chat message in character. Respond with JSON {"content": string, "emotion": string}.`
	}
	cfg.AITimeout = envDuration("AI_TIMEOUT", 30*time.Second)
	cfg.FallbackReply = os.Getenv("AI_FALLBACK_REPLY")
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = "Hmm, my brain glitched for a second there. What were we talking about?"
	}

	cfg.TTSVoice = os.Getenv("TTS_VOICE")
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = "Joanna"
	}
	cfg.TTSEngine = os.Getenv("TTS_ENGINE")
	if cfg.TTSEngine == "" {
		cfg.TTSEngine = "neural"
	}

	cfg.FilterMinLen = envInt("FILTER_MIN_LEN", 2)
	cfg.FilterMaxLen = envInt("FILTER_MAX_LEN", 200)
	if cfg.FilterMinLen < 1 || cfg.FilterMaxLen < cfg.FilterMinLen {
		return nil, fmt.Errorf("invalid filter length bounds: min=%d max=%d", cfg.FilterMinLen, cfg.FilterMaxLen)
	}
	if v := os.Getenv("FILTER_KEYWORDS"); v != "" {
		for _, kw := range strings.Split(v, ",") {
			kw = strings.TrimSpace(kw)
			if kw != "" {
				cfg.FilterKeywords = append(cfg.FilterKeywords, kw)
			}
		}
	} else {
		cfg.FilterKeywords = append([]string(nil), defaultKeywords...)
	}
	cfg.FilterPromoEnabled = os.Getenv("FILTER_PROMO") != "0" // default on
	cfg.FilterRequireAlnum = os.Getenv("FILTER_REQUIRE_ALNUM") != "0"
	cfg.SeenCapacity = envInt("SEEN_CAPACITY", 1000)
	cfg.HistoryCapacity = envInt("HISTORY_CAPACITY", 100)

	cfg.DiscardStaleBroadcasts = os.Getenv("DISCARD_STALE_BROADCASTS") == "1"

	return cfg, nil
}

// ValidateFeedReady checks required fields when the live chat feed is enabled.
func (c *Config) ValidateFeedReady() error {
	if c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}
