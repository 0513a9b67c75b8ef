package notify

import "time"

// Config controls the run-outcome notification pipeline.
//
// The Telegram token is never stored here; the app layer resolves the
// configured token secret and constructs the sender.
type Config struct {
	Enabled bool

	// ChatID is the Telegram chat (or channel) receiving messages.
	ChatID int64

	// OnSuccess additionally announces succeeded runs. Failures are always
	// announced when the notifier is enabled.
	OnSuccess bool

	// RatePerSec paces outgoing messages. 0 applies a default of 1.
	RatePerSec int

	// DedupWindow suppresses repeat messages for the same job+outcome.
	// 0 disables suppression.
	DedupWindow time.Duration

	// QueueSize bounds the event buffer. 0 applies a default of 64.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	return c
}
