// Package services defines shared utilities consumed by the pipeline stage
// handlers and external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify collaborator
//     failures as transient (retried with backoff) or permanent (job failed,
//     no retry).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
