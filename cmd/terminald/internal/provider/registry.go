package provider

import "go.uber.org/zap"

// Registration binds a provider id to its factory. News declares the
// capability up front so the manager never has to probe a live provider.
type Registration struct {
	ID   string
	Name string
	News bool
	New  func(logger *zap.Logger) MarketDataProvider
}

// Registry is an explicit value owned by the composition root; there is no
// package-level registration.
type Registry struct {
	regs []Registration
}

func NewRegistry(regs ...Registration) *Registry {
	return &Registry{regs: regs}
}

func (r *Registry) Get(id string) (Registration, bool) {
	for _, reg := range r.regs {
		if reg.ID == id {
			return reg, true
		}
	}
	return Registration{}, false
}

func (r *Registry) List() []Registration {
	out := make([]Registration, len(r.regs))
	copy(out, r.regs)
	return out
}
