package pipeline

import (
	"fmt"
	"testing"

	"github.com/onnwee/mintcast/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

func TestNormalize(t *testing.T) {
	u, msg := Normalize("  <b>alice</b> ", "hello [laughs] there <script>")
	if u != "&lt;b&gt;alice&lt;/b&gt;" {
		t.Errorf("username = %q", u)
	}
	if msg != "hello  there &lt;script&gt;" {
		t.Errorf("message = %q", msg)
	}
}

func TestGateSuppressionRules(t *testing.T) {
	g := NewGate(FilterPolicy{
		MinLen:       2,
		MaxLen:       20,
		Keywords:     []string{"presale", "airdrop"},
		PromoEnabled: true,
		RequireAlnum: true,
	})

	cases := []struct {
		name    string
		user    string
		message string
		want    bool
	}{
		{"accepted", "alice", "hello there", true},
		{"too short", "bob", "x", false},
		{"too long", "bob", "this message is way past the limit", false},
		{"file token", "bob", "app.exe", false},
		{"keyword", "bob", "join the PRESALE now", false},
		{"promo url", "bob", "see https://x.co", false},
		{"promo handle", "bob", "follow @someone", false},
		{"promo excitement", "bob", "WOW!!!! amazing", false},
		{"no alnum", "bob", ":) :) :)", false},
		{"stage direction only", "bob", "[waves] [smiles]", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := g.Admit(tc.user, tc.message)
			if ok != tc.want {
				t.Errorf("Admit(%q) = %v, want %v", tc.message, ok, tc.want)
			}
		})
	}
}

func TestGateDeduplication(t *testing.T) {
	g := NewGate(FilterPolicy{})

	if _, ok := g.Admit("alice", "hello there"); !ok {
		t.Fatal("first occurrence should be accepted")
	}
	if _, ok := g.Admit("alice", "hello there"); ok {
		t.Error("exact duplicate should be suppressed")
	}
	// same text from a different user is a different identifier
	if _, ok := g.Admit("bob", "hello there"); !ok {
		t.Error("same message from another user should pass")
	}
	// same user, different message
	if _, ok := g.Admit("alice", "hello again"); !ok {
		t.Error("new message from same user should pass")
	}
}

func TestGateDedupAppliesPostNormalization(t *testing.T) {
	g := NewGate(FilterPolicy{})
	if _, ok := g.Admit("alice", "hello there"); !ok {
		t.Fatal("first occurrence should be accepted")
	}
	// normalizes to the same identifier as the first
	if _, ok := g.Admit(" alice ", "hello there [laughs]"); ok {
		t.Error("normalized duplicate should be suppressed")
	}
}

func TestGateSeenEviction(t *testing.T) {
	const capacity = 10
	g := NewGate(FilterPolicy{SeenCapacity: capacity})

	for i := 0; i < capacity+5; i++ {
		if _, ok := g.Admit("user", fmt.Sprintf("message number %d", i)); !ok {
			t.Fatalf("message %d unexpectedly suppressed", i)
		}
	}
	if got := g.SeenLen(); got != capacity {
		t.Errorf("SeenLen = %d, want %d", got, capacity)
	}
	// the oldest identifiers were evicted, so they pass again
	if _, ok := g.Admit("user", "message number 0"); !ok {
		t.Error("evicted identifier should be admitted again")
	}
	// recent ones are still remembered
	if _, ok := g.Admit("user", fmt.Sprintf("message number %d", capacity+4)); ok {
		t.Error("recent identifier should still be suppressed")
	}
}

func TestGateReset(t *testing.T) {
	g := NewGate(FilterPolicy{})
	if _, ok := g.Admit("alice", "hello there"); !ok {
		t.Fatal("first occurrence should be accepted")
	}
	g.Reset()
	if got := g.SeenLen(); got != 0 {
		t.Errorf("SeenLen after Reset = %d, want 0", got)
	}
	if _, ok := g.Admit("alice", "hello there"); !ok {
		t.Error("identifier should pass after Reset")
	}
}

func TestGateAcceptedTurnIsNormalized(t *testing.T) {
	g := NewGate(FilterPolicy{})
	turn, ok := g.Admit("  alice  ", "  hello [waves] world  ")
	if !ok {
		t.Fatal("expected acceptance")
	}
	if turn.Username != "alice" {
		t.Errorf("Username = %q", turn.Username)
	}
	if turn.Message != "hello  world" {
		t.Errorf("Message = %q", turn.Message)
	}
}
