// File: internal/infra/providers/registry.go
package providers

import (
	"fmt"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.ProviderRegistry = (*Registry)(nil)

// Registry maps service keys to the provider configured to sell them.
// Built once at startup; a service key claimed by two providers is a
// configuration error.
type Registry struct {
	byService map[string]adapter.SMSProvider
}

func NewRegistry(provs ...adapter.SMSProvider) (*Registry, error) {
	r := &Registry{byService: make(map[string]adapter.SMSProvider)}
	for _, p := range provs {
		for _, key := range p.Services() {
			if prev, ok := r.byService[key]; ok {
				return nil, fmt.Errorf("service %q claimed by both %s and %s", key, prev.Name(), p.Name())
			}
			r.byService[key] = p
		}
	}
	return r, nil
}

// FromConfig builds the configured vendors and indexes them by service.
func FromConfig(cfgs []config.ProviderConfig) (*Registry, []adapter.SMSProvider, error) {
	provs := make([]adapter.SMSProvider, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Name {
		case "smslive":
			provs = append(provs, NewSMSLive(c))
		default:
			provs = append(provs, NewSMSBower(c))
		}
	}
	reg, err := NewRegistry(provs...)
	if err != nil {
		return nil, nil, err
	}
	return reg, provs, nil
}

func (r *Registry) ForService(serviceKey string) (adapter.SMSProvider, bool) {
	p, ok := r.byService[serviceKey]
	return p, ok
}

// ServiceKeys lists every sellable service, for menu rendering.
func (r *Registry) ServiceKeys() []string {
	keys := make([]string, 0, len(r.byService))
	for k := range r.byService {
		keys = append(keys, k)
	}
	return keys
}
