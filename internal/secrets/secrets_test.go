package secrets

import (
	"errors"
	"testing"
)

func TestStaticStoreResolve(t *testing.T) {
	t.Parallel()
	st := StaticStore{"TOKEN": "abc123"}

	v, err := st.Resolve("TOKEN")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if v != "abc123" {
		t.Fatalf("Resolve = %q, want %q", v, "abc123")
	}

	if _, err := st.Resolve("MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve(MISSING) = %v, want ErrNotFound", err)
	}
}

func TestEnvStorePrefixAndEmpty(t *testing.T) {
	t.Setenv("REFRESHD_SECRET_TOKEN", "tok")
	t.Setenv("REFRESHD_SECRET_BLANK", "")

	st := NewEnvStore("REFRESHD_SECRET_")
	v, err := st.Resolve("TOKEN")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if v != "tok" {
		t.Fatalf("Resolve = %q, want %q", v, "tok")
	}

	// Blank counts as absent.
	if _, err := st.Resolve("BLANK"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve(BLANK) = %v, want ErrNotFound", err)
	}
}

func TestResolveAll(t *testing.T) {
	t.Parallel()
	st := StaticStore{"A": "1", "B": "2"}

	got, err := ResolveAll(st, []string{"A", "B"})
	if err != nil {
		t.Fatalf("ResolveAll error: %v", err)
	}
	if got["A"] != "1" || got["B"] != "2" {
		t.Fatalf("unexpected values: %v", got)
	}

	if _, err := ResolveAll(st, []string{"A", "C"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveAll with missing = %v, want ErrNotFound", err)
	}

	// No declared secrets never touches the store.
	if got, err := ResolveAll(nil, nil); err != nil || got != nil {
		t.Fatalf("ResolveAll(nil, nil) = %v, %v", got, err)
	}

	// Declared secrets but no store is a resolution failure.
	if _, err := ResolveAll(nil, []string{"A"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveAll(nil store) = %v, want ErrNotFound", err)
	}
}

func TestChainFallthrough(t *testing.T) {
	t.Parallel()
	c := Chain{StaticStore{"A": "1"}, StaticStore{"B": "2"}}

	if v, err := c.Resolve("B"); err != nil || v != "2" {
		t.Fatalf("Resolve(B) = %q, %v", v, err)
	}
	if _, err := c.Resolve("C"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve(C) = %v, want ErrNotFound", err)
	}
}
