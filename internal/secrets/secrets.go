// Package secrets resolves opaque credentials by name at trigger time.
//
// The store is the only shared resource between runs and is read-only.
// Resolved values are handed to exactly one run and must never be logged;
// the runner's log capture redacts them as a second line of defense.
package secrets

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a declared secret is absent from the store.
// The runner treats this as fatal for the run: no process is started.
var ErrNotFound = errors.New("secret not found")

// Store resolves secret values by name.
type Store interface {
	// Resolve returns the value for name or an error wrapping ErrNotFound.
	Resolve(name string) (string, error)
}

// ResolveAll resolves every requested name, failing on the first miss.
// The returned map is fresh per call; callers own its lifetime.
func ResolveAll(store Store, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("no secret store configured, %d secret(s) declared: %w", len(names), ErrNotFound)
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		v, err := store.Resolve(n)
		if err != nil {
			return nil, err
		}
		out[n] = v
	}
	return out, nil
}
