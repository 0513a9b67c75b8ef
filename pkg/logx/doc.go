// Package logx configures refreshd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Loggers created from a Service stay live across Apply() calls, so config
// hot-reload can swap sinks and levels without re-plumbing loggers.
package logx
