package runner

import (
	"bytes"
	"io"
	"sort"
)

const redactedPlaceholder = "[redacted]"

// redactor is a streaming writer that replaces secret values with a
// placeholder before bytes reach the underlying sink.
//
// Writes are buffered per line so a secret split across two Write calls is
// still caught as long as it doesn't span a newline (secret values with
// embedded newlines are not supported by the env injection path anyway).
type redactor struct {
	w       io.Writer
	secrets [][]byte
	buf     bytes.Buffer
}

// newRedactor builds a redactor for the given secret values. Values shorter
// than 4 bytes are ignored: redacting e.g. "1" would shred ordinary output
// while providing no secrecy. Longer values are replaced first so a secret
// that contains another secret as a substring redacts cleanly.
func newRedactor(w io.Writer, values []string) *redactor {
	secrets := make([][]byte, 0, len(values))
	for _, v := range values {
		if len(v) >= 4 {
			secrets = append(secrets, []byte(v))
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	return &redactor{w: w, secrets: secrets}
}

func (r *redactor) Write(p []byte) (int, error) {
	if len(r.secrets) == 0 {
		return r.w.Write(p)
	}
	r.buf.Write(p)
	for {
		b := r.buf.Bytes()
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i+1)
		copy(line, b[:i+1])
		r.buf.Next(i + 1)
		if _, err := r.w.Write(r.scrub(line)); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush scrubs and writes any buffered partial line.
func (r *redactor) Flush() error {
	if r.buf.Len() == 0 {
		return nil
	}
	line := r.scrub(r.buf.Bytes())
	r.buf.Reset()
	_, err := r.w.Write(line)
	return err
}

func (r *redactor) scrub(line []byte) []byte {
	for _, s := range r.secrets {
		if bytes.Contains(line, s) {
			line = bytes.ReplaceAll(line, s, []byte(redactedPlaceholder))
		}
	}
	return line
}
