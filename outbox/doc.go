// Package outbox implements the transactional outbox: a durable per-service
// log written in the same unit of work as the business mutation, drained by a
// polling relay through the publish pipeline. It exists to avoid the
// dual-write problem of "write DB, then call broker".
package outbox
