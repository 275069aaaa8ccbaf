// Package messaging holds the consumer-side state machine and the envelope
// publisher shared by all services. A message moves through
// Received -> {Rejected | Processing -> Acked | Requeued | DeadLettered};
// the requeue budget rides on the message headers so a restart does not
// reset it.
package messaging
