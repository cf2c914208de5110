// Package forwarder manages the persisted list of upstream AI relay endpoints
// and the failover policy that routes around rate-limited ones.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/mintcast/telemetry"
)

// ErrNoneAvailable signals that no forwarder is selected or every forwarder
// is usage-limited. Callers treat it as the exhaustion state: no AI call can
// succeed until an operator re-enables an endpoint.
var ErrNoneAvailable = errors.New("no forwarder available")

// Entry is one upstream relay endpoint. At most one entry has Selected=true
// at steady state.
type Entry struct {
	URL          string `json:"url"`
	UsageLimited bool   `json:"usage_limited"`
	Selected     bool   `json:"selected"`
}

// Store persists the ordered forwarder list. Mutations are whole-list
// read-modify-write; there is no field-level update.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Registry serializes all read-modify-write cycles against the store. The
// mutex is load-bearing: the AI pipeline and the admin surface mutate the
// same list from different goroutines.
type Registry struct {
	mu    sync.Mutex
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// SelectActive returns the URL of the single selected entry, or
// ErrNoneAvailable when nothing is marked selected.
func (r *Registry) SelectActive(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load forwarders: %w", err)
	}
	for _, e := range entries {
		if e.Selected {
			return e.URL, nil
		}
	}
	return "", ErrNoneAvailable
}

// Failover marks the currently selected entry usage-limited and promotes the
// first non-limited entry in list order. When every entry is limited the
// deactivation is still persisted and ErrNoneAvailable is returned; that is
// the exhaustion state and is logged loudly since no further AI calls can
// succeed.
func (r *Registry) Failover(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load forwarders: %w", err)
	}
	var demoted string
	for i := range entries {
		if entries[i].Selected {
			entries[i].Selected = false
			entries[i].UsageLimited = true
			demoted = entries[i].URL
		}
	}
	next := -1
	for i := range entries {
		if !entries[i].UsageLimited {
			next = i
			break
		}
	}
	if next >= 0 {
		entries[next].Selected = true
	}
	if err := r.store.Save(ctx, entries); err != nil {
		return "", fmt.Errorf("save forwarders: %w", err)
	}
	telemetry.Failovers.Inc()
	if next < 0 {
		telemetry.UpdateExhaustedGauge(true)
		slog.Error("ALL FORWARDERS USAGE-LIMITED: AI pipeline cannot proceed until an endpoint is re-enabled",
			slog.String("demoted", demoted), slog.Int("total", len(entries)), slog.String("component", "forwarder"))
		return "", ErrNoneAvailable
	}
	telemetry.UpdateExhaustedGauge(false)
	slog.Warn("forwarder failover", slog.String("demoted", demoted), slog.String("promoted", entries[next].URL), slog.String("component", "forwarder"))
	return entries[next].URL, nil
}

// AdminSelect unconditionally selects the entry matching url and clears the
// flag on all others, bypassing the usage-limited check.
func (r *Registry) AdminSelect(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load forwarders: %w", err)
	}
	found := false
	for i := range entries {
		if entries[i].URL == url {
			entries[i].Selected = true
			found = true
		} else {
			entries[i].Selected = false
		}
	}
	if !found {
		return fmt.Errorf("forwarder %q not registered", url)
	}
	if err := r.store.Save(ctx, entries); err != nil {
		return fmt.Errorf("save forwarders: %w", err)
	}
	slog.Info("forwarder selected by admin", slog.String("url", url), slog.String("component", "forwarder"))
	return nil
}

// List returns a copy of the current entries.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load forwarders: %w", err)
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// EnsureSeed populates an empty store from the given URLs, selecting the
// first. A non-empty store is left untouched so operator edits survive
// restarts.
func (r *Registry) EnsureSeed(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load forwarders: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}
	seeded := make([]Entry, 0, len(urls))
	for i, u := range urls {
		seeded = append(seeded, Entry{URL: u, Selected: i == 0})
	}
	if err := r.store.Save(ctx, seeded); err != nil {
		return fmt.Errorf("save forwarders: %w", err)
	}
	slog.Info("seeded forwarder list", slog.Int("count", len(seeded)), slog.String("component", "forwarder"))
	return nil
}
