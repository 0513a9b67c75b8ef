package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvStore resolves secrets from the daemon's own environment, optionally
// behind a prefix (e.g. prefix "REFRESHD_SECRET_" maps the declared name
// "TOKEN" to the variable "REFRESHD_SECRET_TOKEN").
//
// Empty values count as absent: an exported-but-blank variable is almost
// always a deployment mistake, and failing early beats running the entry
// point with a useless credential.
type EnvStore struct {
	Prefix string
}

func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: strings.TrimSpace(prefix)}
}

func (s *EnvStore) Resolve(name string) (string, error) {
	key := s.Prefix + name
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %s: %w", key, ErrNotFound)
	}
	return v, nil
}

// StaticStore is a fixed name->value map, used by tests and by configs that
// inline non-sensitive tokens.
type StaticStore map[string]string

func (s StaticStore) Resolve(name string) (string, error) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return v, nil
}

// Chain tries stores in order, returning the first hit. A miss in every
// store reports the last error (which wraps ErrNotFound).
type Chain []Store

func (c Chain) Resolve(name string) (string, error) {
	var lastErr error
	for _, st := range c {
		if st == nil {
			continue
		}
		v, err := st.Resolve(name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return "", lastErr
}
