package payment

import "context"

// Gateway settles a charge. A declined charge returns a DeclinedError; any
// other error is a gateway infrastructure failure and is retried by the
// consumer pipeline.
type Gateway interface {
	Charge(ctx context.Context, bookingID string, amount float64) error
}

// DeclinedError is an expected business outcome: the charge was refused.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return "payment declined: " + e.Reason
}

// IsRetryable reports false: a decline is a decision, not a glitch.
func (e *DeclinedError) IsRetryable() bool {
	return false
}

// DemoGateway approves every charge up to a configurable limit. It stands in
// for a real payment provider in tests and demo deployments.
type DemoGateway struct {
	// DeclineOver declines any amount strictly above the limit. Zero means
	// approve everything.
	DeclineOver float64
}

// Charge implements Gateway.
func (g *DemoGateway) Charge(ctx context.Context, bookingID string, amount float64) error {
	if g.DeclineOver > 0 && amount > g.DeclineOver {
		return &DeclinedError{Reason: "amount over limit"}
	}
	return nil
}
