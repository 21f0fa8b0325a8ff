package provider

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/cognimesh/core"
)

type entry struct {
	provider Provider
	seq      int
}

// snapshot is an immutable view of the registry. Writers replace it whole.
type snapshot struct {
	byName  map[string]entry
	ordered []entry // by Position, then registration order
}

// Selection chooses the providers of one composition.
type Selection struct {
	// All selects every registered provider.
	All bool
	// Names adds static providers to the default set of dynamic ones.
	// Matching is case-insensitive; unknown names are ignored.
	Names []string
}

// Registry holds providers by unique name. Reads are lock-free; writes copy
// the current snapshot.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a registry, optionally pre-populated.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{}
	r.snap.Store(&snapshot{byName: map[string]entry{}})

	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Register adds p. Empty and duplicate names are rejected.
func (r *Registry) Register(p Provider) error {
	if p == nil || strings.TrimSpace(p.Name()) == "" {
		return core.NewError(core.CodeInvalidInput, "provider name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	k := key(p.Name())

	if _, exists := cur.byName[k]; exists {
		return core.Errorf(core.CodeDuplicate, "provider %q already registered", p.Name())
	}

	next := &snapshot{
		byName:  make(map[string]entry, len(cur.byName)+1),
		ordered: make([]entry, 0, len(cur.ordered)+1),
	}

	for n, e := range cur.byName {
		next.byName[n] = e
	}

	e := entry{provider: p, seq: len(cur.ordered)}
	next.byName[k] = e
	next.ordered = append(next.ordered, cur.ordered...)
	next.ordered = append(next.ordered, e)

	slices.SortStableFunc(next.ordered, func(a, b entry) int {
		if a.provider.Position() != b.provider.Position() {
			return a.provider.Position() - b.provider.Position()
		}

		return a.seq - b.seq
	})

	r.snap.Store(next)

	return nil
}

// Get looks up a provider by name, case-insensitively.
func (r *Registry) Get(name string) (Provider, bool) {
	e, ok := r.load().byName[key(name)]
	return e.provider, ok
}

// Providers returns all providers in composition order.
func (r *Registry) Providers() []Provider {
	return r.Select(Selection{All: true})
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.load().ordered)
}

// Select resolves a selection to providers in composition order.
func (r *Registry) Select(sel Selection) []Provider {
	snap := r.load()

	requested := make(map[string]struct{}, len(sel.Names))
	for _, n := range sel.Names {
		requested[key(n)] = struct{}{}
	}

	out := make([]Provider, 0, len(snap.ordered))

	for _, e := range snap.ordered {
		if !sel.All && !e.provider.Dynamic() {
			if _, ok := requested[key(e.provider.Name())]; !ok {
				continue
			}
		}

		out = append(out, e.provider)
	}

	return out
}

func (r *Registry) load() *snapshot {
	if s := r.snap.Load(); s != nil {
		return s
	}

	return &snapshot{byName: map[string]entry{}}
}
