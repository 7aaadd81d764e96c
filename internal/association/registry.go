package association

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrStrategyExists   = errors.New("strategy already registered")
	ErrStrategyNotFound = errors.New("strategy not found")
)

// Registry maps strategy names to instances so the chain order can come from configuration
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its Name()
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("%w: '%s'", ErrStrategyExists, name)
	}
	r.strategies[name] = s
	return nil
}

// Get returns a strategy by name
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrStrategyNotFound, name)
	}
	return s, nil
}

// List returns all registered strategy names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildChain resolves the names in order. Unknown or repeated names are an error.
func (r *Registry) BuildChain(names []string) (*Chain, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one association strategy is required")
	}

	seen := make(map[string]bool, len(names))
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("association strategy '%s' listed twice", name)
		}
		seen[name] = true

		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return NewChain(strategies...), nil
}

// DefaultRegistry registers the built-in strategies
func DefaultRegistry(catalog GTINFinder) *Registry {
	r := NewRegistry()
	_ = r.Register(NewGlobalTradeIDStrategy(catalog))
	return r
}
