package pipeline

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/onnwee/mintcast/telemetry"
)

// FilterPolicy holds the product knobs of the gate. The invariants
// (dedup-before-processing, bounded seen set) are not configurable.
type FilterPolicy struct {
	MinLen       int
	MaxLen       int
	Keywords     []string // case-insensitive substrings
	PromoEnabled bool
	RequireAlnum bool
	SeenCapacity int
}

var (
	escaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

	// stage directions like [laughs] or [shows chart] are stripped before
	// filtering and before use as AI input
	stageDirectionRe = regexp.MustCompile(`\[[^\]]*\]`)

	// a lone filename/version token, e.g. "app.exe" or "1.0"
	fileTokenRe = regexp.MustCompile(`^[A-Za-z0-9]+\.[A-Za-z0-9]+$`)

	promoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(https?://|www\.)\S+`),
		regexp.MustCompile(`@[A-Za-z0-9_]{2,}`),
		regexp.MustCompile(`(?i)\b(follow (me|us|back)|giveaway|free (money|tokens|nft)|check out my|sub to|join my|promo code|dm me)\b`),
		regexp.MustCompile(`!{3,}`),
	}
)

// Gate decides whether an inbound (username, message) pair is eligible for AI
// processing. Accepted turns come back normalized; suppressed ones are
// silently dropped. The gate records accepted identifiers into its seen set
// before returning, so a duplicate arriving while the first occurrence is
// still in flight is suppressed too.
type Gate struct {
	mu        sync.Mutex
	policy    FilterPolicy
	seen      map[string]struct{}
	seenOrder []string
}

func NewGate(policy FilterPolicy) *Gate {
	if policy.MinLen <= 0 {
		policy.MinLen = 2
	}
	if policy.MaxLen <= 0 {
		policy.MaxLen = 200
	}
	if policy.SeenCapacity <= 0 {
		policy.SeenCapacity = 1000
	}
	return &Gate{
		policy: policy,
		seen:   make(map[string]struct{}),
	}
}

// Normalize HTML-escapes angle brackets in both fields, trims whitespace, and
// strips bracketed stage-direction tokens from the message.
func Normalize(username, message string) (string, string) {
	u := strings.TrimSpace(escaper.Replace(username))
	m := stageDirectionRe.ReplaceAllString(escaper.Replace(message), "")
	return u, strings.TrimSpace(m)
}

// Admit runs the full suppression policy. The boolean is false when the turn
// was suppressed; no error, no broadcast.
func (g *Gate) Admit(username, message string) (ChatTurn, bool) {
	u, m := Normalize(username, message)

	if reason := g.suppressReason(u, m); reason != "" {
		telemetry.TurnsSuppressed.Inc()
		slog.Debug("turn suppressed", slog.String("reason", reason), slog.String("username", u), slog.String("component", "filter"))
		return ChatTurn{}, false
	}

	g.mu.Lock()
	id := u + m
	if _, dup := g.seen[id]; dup {
		g.mu.Unlock()
		telemetry.TurnsSuppressed.Inc()
		slog.Debug("turn suppressed", slog.String("reason", "duplicate"), slog.String("username", u), slog.String("component", "filter"))
		return ChatTurn{}, false
	}
	g.remember(id)
	g.mu.Unlock()

	telemetry.TurnsAccepted.Inc()
	return ChatTurn{Username: u, Message: m}, true
}

// suppressReason applies the stateless rules; empty string means pass.
func (g *Gate) suppressReason(username, message string) string {
	n := utf8.RuneCountInString(message)
	if n < g.policy.MinLen || n > g.policy.MaxLen {
		return "length"
	}
	if fileTokenRe.MatchString(message) {
		return "file-token"
	}
	lower := strings.ToLower(message)
	for _, kw := range g.policy.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return "keyword"
		}
	}
	if g.policy.PromoEnabled {
		for _, re := range promoPatterns {
			if re.MatchString(message) {
				return "promo"
			}
		}
	}
	if g.policy.RequireAlnum && !containsAlnum(message) {
		return "no-alnum"
	}
	return ""
}

// remember records an identifier, evicting the oldest insertion when the set
// is at capacity. Must be called with the mutex held.
func (g *Gate) remember(id string) {
	if len(g.seenOrder) >= g.policy.SeenCapacity {
		oldest := g.seenOrder[0]
		g.seenOrder = g.seenOrder[1:]
		delete(g.seen, oldest)
	}
	g.seen[id] = struct{}{}
	g.seenOrder = append(g.seenOrder, id)
}

// Reset clears the dedup record; called on every room switch.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
	g.seenOrder = nil
}

// SeenLen reports the current dedup record size.
func (g *Gate) SeenLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
