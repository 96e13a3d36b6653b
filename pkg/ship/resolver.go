package ship

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flotilla-io/flotilla/pkg/entity"
)

// Resolver produces the ordered set of ships a play may operate on.
// It is consulted once per invocation, before graph construction,
// since instances bind to ships by name.
type Resolver interface {
	Resolve(ctx context.Context) ([]*entity.Ship, error)
}

// ResolverFactory builds a resolver from a loaded environment.
type ResolverFactory func(m *entity.Model) (Resolver, error)

var (
	resolverMu sync.RWMutex
	resolvers  = make(map[string]ResolverFactory)
)

// RegisterResolver makes a resolver kind available. Alternate
// inventories (dynamic cloud lists, for example) register here and
// are selected by kind at invocation time.
func RegisterResolver(kind string, factory ResolverFactory) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolvers[kind] = factory
}

// NewResolver builds the resolver of the given kind for an
// environment.
func NewResolver(kind string, m *entity.Model) (Resolver, error) {
	resolverMu.RLock()
	factory, ok := resolvers[kind]
	resolverMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ship provider %q", kind)
	}
	return factory(m)
}

func init() {
	RegisterResolver("static", func(m *entity.Model) (Resolver, error) {
		return NewStaticResolver(m.Ships), nil
	})
}

// StaticResolver returns the statically declared ships of the
// environment, ordered by name.
type StaticResolver struct {
	ships []*entity.Ship
}

// NewStaticResolver builds a resolver over a fixed ship set.
func NewStaticResolver(ships map[string]*entity.Ship) *StaticResolver {
	names := make([]string, 0, len(ships))
	for name := range ships {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]*entity.Ship, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, ships[name])
	}
	return &StaticResolver{ships: ordered}
}

// Resolve returns the configured ships.
func (r *StaticResolver) Resolve(_ context.Context) ([]*entity.Ship, error) {
	if len(r.ships) == 0 {
		return nil, fmt.Errorf("environment declares no ships")
	}
	return r.ships, nil
}
