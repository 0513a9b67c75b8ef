// Package scheduler turns job schedules into firings.
//
// It is trigger-only: when a schedule fires it hands the job name to a sink
// (the run engine) and never executes anything itself. Execution policy
// (workers, timeout, overlap, retry) lives in internal/runner.
//
// # Schedule formats
//
// The scheduler accepts multiple schedule syntaxes:
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "0 3 * * *" (daily 03:00).
//   - Cron descriptors: "@hourly", "@daily", "@every 55m".
//   - Interval durations: Go duration strings like "55m" or "2h30m".
//   - Interval HH:MM: a compact duration format where "00:50" means every 50
//     minutes and "02:30" means every 2 hours 30 minutes.
//
// To force interpretation, callers may prefix the string with "cron:",
// "interval:", or "every:".
//
// A malformed schedule is rejected at Register time, before any run exists.
package scheduler
