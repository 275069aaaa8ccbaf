package contracts

import "fmt"

// MalformedEnvelopeError marks a payload that can never be processed. The
// consumer rejects such messages immediately, without requeue.
type MalformedEnvelopeError struct {
	Err error
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("contracts: malformed envelope: %v", e.Err)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// IsRetryable reports false: decoding failures are permanent.
func (e *MalformedEnvelopeError) IsRetryable() bool {
	return false
}
