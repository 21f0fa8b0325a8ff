package action

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/hupe1980/cognimesh/core"
)

type snapshot struct {
	ordered []Action
	names   map[string]Action
	similes map[string]Action
}

// Registry holds actions by unique name and indexes their similes. Lookups
// are lock-free; registration copies the current snapshot.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a registry, optionally pre-populated.
func NewRegistry(actions ...Action) (*Registry, error) {
	r := &Registry{}

	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Normalize maps an action name to its lookup key: upper case with every
// non alphanumeric rune removed, so "send-message", "Send Message" and
// "SEND_MESSAGE" are the same action.
func Normalize(name string) string {
	var sb strings.Builder

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}

	return sb.String()
}

// Register adds a. Names must be unique after normalization. A simile that
// is already taken keeps pointing at its first owner.
func (r *Registry) Register(a Action) error {
	if a == nil || Normalize(a.Name()) == "" {
		return core.NewError(core.CodeInvalidInput, "action name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	k := Normalize(a.Name())

	if _, exists := cur.names[k]; exists {
		return core.Errorf(core.CodeDuplicate, "action %q already registered", a.Name())
	}

	next := &snapshot{
		ordered: append(append(make([]Action, 0, len(cur.ordered)+1), cur.ordered...), a),
		names:   make(map[string]Action, len(cur.names)+1),
		similes: make(map[string]Action, len(cur.similes)+len(a.Similes())),
	}

	for n, v := range cur.names {
		next.names[n] = v
	}

	for n, v := range cur.similes {
		next.similes[n] = v
	}

	next.names[k] = a

	for _, s := range a.Similes() {
		sk := Normalize(s)
		if sk == "" {
			continue
		}

		if _, taken := next.similes[sk]; !taken {
			next.similes[sk] = a
		}
	}

	r.snap.Store(next)

	return nil
}

// Lookup resolves a name or simile. Names take precedence over similes.
func (r *Registry) Lookup(name string) (Action, bool) {
	snap := r.load()
	k := Normalize(name)

	if a, ok := snap.names[k]; ok {
		return a, true
	}

	a, ok := snap.similes[k]

	return a, ok
}

// Actions returns all actions in registration order.
func (r *Registry) Actions() []Action {
	return append([]Action(nil), r.load().ordered...)
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.load().ordered)
}

func (r *Registry) load() *snapshot {
	if s := r.snap.Load(); s != nil {
		return s
	}

	return &snapshot{names: map[string]Action{}, similes: map[string]Action{}}
}
