// Package rabbitmq is the AMQP transport: the patient connection pipeline,
// the confirm-mode publish pipeline, the per-queue delivery loop and the
// queue/DLQ topology declarations.
package rabbitmq
