package scan

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// Registry is the catalog of probes a scan may request, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]probe.Probe
}

// NewRegistry registers every probe or fails on the first bad one.
func NewRegistry(probes ...probe.Probe) (*Registry, error) {
	r := &Registry{probes: make(map[string]probe.Probe, len(probes))}
	for _, p := range probes {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p under p.Name().
func (r *Registry) Register(p probe.Probe) error {
	if p == nil {
		return fmt.Errorf("%w: nil probe", sharedErrors.ErrInvalidInput)
	}
	name := p.Name()
	if strings.TrimSpace(name) == "" || name != strings.ToLower(strings.TrimSpace(name)) {
		return fmt.Errorf("%w: invalid probe name %q", sharedErrors.ErrInvalidInput, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[name]; exists {
		return fmt.Errorf("%w: %s", sharedErrors.ErrDuplicateProbe, name)
	}
	r.probes[name] = p
	return nil
}

// Lookup returns the probe registered under name.
func (r *Registry) Lookup(name string) (probe.Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.probes[name]
	return p, ok
}

// Names lists the catalog in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps requested names to probes. Names must match exactly.
// Duplicates collapse; an empty request or any unknown name is a
// configuration error.
func (r *Registry) Resolve(names []string) ([]probe.Probe, error) {
	if len(names) == 0 {
		return nil, &probe.ConfigurationError{Field: "probes", Message: sharedErrors.ErrNoProbes.Error()}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(names))
	resolved := make([]probe.Probe, 0, len(names))
	var unknown []string
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		p, ok := r.probes[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		resolved = append(resolved, p)
	}
	if len(unknown) > 0 {
		return nil, &probe.ConfigurationError{Field: "probes", Unknown: unknown}
	}
	return resolved, nil
}
