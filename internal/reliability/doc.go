// Package reliability provides the bounded-retry primitives shared by the
// publish pipeline, the connection pipeline and the consumer's in-process
// handler retry: backoff policies with jitter, a context-aware retry loop and
// transient-vs-permanent error classification.
package reliability
