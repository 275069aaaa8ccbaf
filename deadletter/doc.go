// Package deadletter records messages that exhausted their requeue budget,
// with enough diagnostic metadata for manual recovery.
package deadletter
