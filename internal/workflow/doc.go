// Package workflow implements the Temporal workflow that turns a corpus into
// an evaluation dataset.
//
// Workflows here must stay deterministic: no system time, randomness, or
// I/O. Generation and persistence run as activities from
// internal/generation.
package workflow
