package reliability

// retryable is the probe interface errors implement to classify themselves.
type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether an error is worth retrying. Errors carrying an
// IsRetryable method classify themselves; unknown errors default to retryable,
// since transient infrastructure failures are the common case in this layer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}

// PermanentError wraps an error that must never be retried.
type PermanentError struct {
	Err error
}

func (p *PermanentError) Error() string {
	return p.Err.Error()
}

func (p *PermanentError) Unwrap() error {
	return p.Err
}

// IsRetryable implements the classification probe.
func (p *PermanentError) IsRetryable() bool {
	return false
}

// Permanent marks err as non-retryable. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
