package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/core"
)

// Registry holds every registered Capability and answers the planner's
// and validator's lookups against it. Registration order is deterministic
// (insertion order) so the LLM catalog text built by DescribeForLLM is stable
// across runs, aiding prompt caching.
type Registry struct {
	mu           sync.RWMutex
	order        []string
	byName       map[string]Capability
	logger       core.Logger
	descCache    string
	descCacheSet bool
}

// NewRegistry creates an empty registry. Pass nil for logger to use a
// no-op logger.
func NewRegistry(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		byName: make(map[string]Capability),
		logger: logger,
	}
}

// Register adds a capability, returning conductorerr.ErrCapabilityExists if
// the name is already taken. Registering invalidates the cached
// description text.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.byName[name]; exists {
		return conductorerr.New("registry.Register", "capability", conductorerr.ErrCapabilityExists).WithID(name)
	}
	r.byName[name] = c
	r.order = append(r.order, name)
	r.descCacheSet = false

	r.logger.Info("capability registered", map[string]interface{}{"name": name})
	return nil
}

// Unregister removes a capability by name. Invalidates the cached
// description text.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		return conductorerr.New("registry.Unregister", "capability", conductorerr.ErrCapabilityNotFound).WithID(name)
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.descCacheSet = false
	return nil
}

// Get returns a capability by exact name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// All returns every registered capability in deterministic registration
// order.
func (r *Registry) All() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, len(r.order))
	for i, name := range r.order {
		out[i] = r.byName[name]
	}
	return out
}

// FindByName resolves a capability name exactly, then case-insensitively,
// then by unique substring match — the same fuzzy fallback chain the
// validator's capability-name repair pass uses when the LLM names a
// capability that's close but not exact.
func (r *Registry) FindByName(name string) (Capability, bool) {
	if c, ok := r.Get(name); ok {
		return c, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(name)
	for _, n := range r.order {
		if strings.ToLower(n) == lower {
			return r.byName[n], true
		}
	}

	var matches []string
	for _, n := range r.order {
		if strings.Contains(strings.ToLower(n), lower) || strings.Contains(lower, strings.ToLower(n)) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 1 {
		return r.byName[matches[0]], true
	}
	return nil, false
}

// Execute looks up capability/function and runs it, surfacing
// conductorerr.ErrCapabilityNotFound / ErrFunctionNotFound when either
// lookup fails.
func (r *Registry) Execute(ctx context.Context, capabilityName, function string, args map[string]interface{}) (string, error) {
	c, ok := r.Get(capabilityName)
	if !ok {
		return "", conductorerr.New("registry.Execute", "capability", conductorerr.ErrCapabilityNotFound).WithID(capabilityName)
	}
	hasFunction := false
	for _, f := range c.Functions() {
		if f.Name == function {
			hasFunction = true
			break
		}
	}
	if !hasFunction {
		return "", conductorerr.New("registry.Execute", "capability", conductorerr.ErrFunctionNotFound).WithID(fmt.Sprintf("%s.%s", capabilityName, function))
	}
	return c.Execute(ctx, function, args)
}

// DescribeForLLM renders every registered capability's name, description,
// and function signatures as a single text block suitable for embedding
// in an LLM prompt. The result is cached until the next Register/Unregister.
func (r *Registry) DescribeForLLM() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.descCacheSet {
		return r.descCache
	}

	var b strings.Builder
	for _, name := range r.order {
		c := r.byName[name]
		fmt.Fprintf(&b, "## %s\n%s\n", c.Name(), c.Description())
		functions := c.Functions()
		sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
		for _, f := range functions {
			fmt.Fprintf(&b, "- %s(", f.Name)
			for i, p := range f.Params {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s: %s", p.Name, p.Type)
				if !p.Required {
					b.WriteString("?")
				}
			}
			fmt.Fprintf(&b, ") — %s\n", f.Description)
		}
	}

	r.descCache = b.String()
	r.descCacheSet = true
	return r.descCache
}

// Names returns every registered capability name in registration order,
// used by the validator's first-registered substitution and by LayerInfo.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
