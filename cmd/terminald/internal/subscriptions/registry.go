package subscriptions

import (
	"sort"
	"sync"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// Registry tracks the desired set of streaming subscriptions per channel
// type. It is the single source of truth for what gets replayed after a
// reconnect. Add and Remove report the actual delta so callers can send
// incremental wire messages instead of full resends.
type Registry struct {
	mu   sync.Mutex
	sets map[models.ChannelType]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[models.ChannelType]map[string]struct{})}
}

// Add unions symbols into the tracked set and returns only the symbols that
// were not already present, in input order.
func (r *Registry) Add(ct models.ChannelType, symbols []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sets[ct]
	if set == nil {
		set = make(map[string]struct{})
		r.sets[ct] = set
	}

	var added []string
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		added = append(added, s)
	}
	return added
}

// Remove subtracts symbols from the tracked set and returns exactly the
// symbols that were present, in input order.
func (r *Registry) Remove(ct models.ChannelType, symbols []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sets[ct]
	if set == nil {
		return nil
	}

	var removed []string
	for _, s := range symbols {
		if _, ok := set[s]; !ok {
			continue
		}
		delete(set, s)
		removed = append(removed, s)
	}
	return removed
}

// Snapshot returns the current set for a channel, sorted for deterministic
// wire messages. Nil when empty.
func (r *Registry) Snapshot(ct models.ChannelType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sets[ct]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Has reports whether symbol is tracked on the given channel
func (r *Registry) Has(ct models.ChannelType, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sets[ct][symbol]
	return ok
}

func (r *Registry) Count(ct models.ChannelType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets[ct])
}

// Clear drops every tracked subscription. Used on dispose.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[models.ChannelType]map[string]struct{})
}
