package runner

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedactorReplacesSecretValues(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRedactor(&out, []string{"abc123secret"})

	if _, err := r.Write([]byte("token=abc123secret done\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "abc123secret") {
		t.Fatalf("secret survived redaction: %q", got)
	}
	if got != "token="+redactedPlaceholder+" done\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRedactorHandlesSplitWrites(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRedactor(&out, []string{"abc123secret"})

	// Secret split across two writes within the same line.
	_, _ = r.Write([]byte("prefix abc123"))
	_, _ = r.Write([]byte("secret suffix\n"))
	_ = r.Flush()

	if strings.Contains(out.String(), "abc123secret") {
		t.Fatalf("split secret survived redaction: %q", out.String())
	}
}

func TestRedactorFlushesPartialLine(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRedactor(&out, []string{"abc123secret"})

	_, _ = r.Write([]byte("no trailing newline abc123secret"))
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if strings.Contains(out.String(), "abc123secret") {
		t.Fatalf("partial line leaked secret: %q", out.String())
	}
}

func TestRedactorIgnoresShortValues(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRedactor(&out, []string{"a", "ok!"})

	_, _ = r.Write([]byte("a normal line is ok!\n"))
	_ = r.Flush()

	if out.String() != "a normal line is ok!\n" {
		t.Fatalf("short values should not be redacted: %q", out.String())
	}
}

func TestRedactorLongestFirst(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRedactor(&out, []string{"token", "token-extended"})

	_, _ = r.Write([]byte("x token-extended y\n"))
	_ = r.Flush()

	want := "x " + redactedPlaceholder + " y\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}
