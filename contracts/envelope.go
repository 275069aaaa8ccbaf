package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format every saga event crosses process boundaries in.
// Envelopes are append-only facts: consumers never mutate a received envelope,
// only the local aggregate state it describes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	EventName     string          `json:"event_name"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope around the given payload with a fresh event id
// and the producer's clock. The correlation id is copied verbatim; it is fixed
// once at the saga entry point and threaded through every downstream event.
func NewEnvelope(eventName, correlationID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("contracts: marshal %s payload: %w", eventName, err)
	}

	return Envelope{
		EventID:       uuid.New().String(),
		CorrelationID: correlationID,
		EventName:     eventName,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}, nil
}

// Encode serializes the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a message body into an envelope. Failures are
// permanent: a body that does not decode will never decode, so the error is
// marked non-retryable for the consumer state machine.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &MalformedEnvelopeError{Err: err}
	}
	if strings.TrimSpace(env.EventName) == "" {
		return Envelope{}, &MalformedEnvelopeError{Err: fmt.Errorf("missing event_name")}
	}
	return env, nil
}

// DecodeData unmarshals the event-specific payload into out.
func (e Envelope) DecodeData(out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return &MalformedEnvelopeError{Err: fmt.Errorf("decode %s data: %w", e.EventName, err)}
	}
	return nil
}

// NewCorrelationID generates the identifier fixed at the start of a saga
// instance.
func NewCorrelationID() string {
	return uuid.New().String()
}
