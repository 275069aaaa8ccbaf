package contracts

// Event names double as queue names: one durable queue per event type,
// default-exchange routing by queue name.
const (
	EventBookingRequested      = "booking.requested"
	EventSeatReserved          = "seat.reserved"
	EventSeatReservationFailed = "seat.reservation.failed"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSeatReleaseRequested  = "seat.release.requested"
)

// SagaQueues lists every queue the three services consume, in saga order.
var SagaQueues = []string{
	EventBookingRequested,
	EventSeatReserved,
	EventSeatReservationFailed,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventSeatReleaseRequested,
}

// BookingRequested starts a saga instance.
type BookingRequested struct {
	BookingID string  `json:"booking_id"`
	UserID    string  `json:"user_id"`
	ItemID    string  `json:"item_id"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
}

// SeatReserved reports a successful inventory reservation. Amount is carried
// through from the request so the payment service can charge without a
// cross-service lookup.
type SeatReserved struct {
	BookingID string  `json:"booking_id"`
	ItemID    string  `json:"item_id"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
}

// SeatReservationFailed reports that inventory could not be reserved. This is
// an expected business outcome, not an infrastructure error.
type SeatReservationFailed struct {
	BookingID string `json:"booking_id"`
	ItemID    string `json:"item_id"`
	Reason    string `json:"reason"`
}

// PaymentSucceeded reports a settled charge.
type PaymentSucceeded struct {
	BookingID string  `json:"booking_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
}

// PaymentFailed reports a declined or failed charge.
type PaymentFailed struct {
	BookingID string  `json:"booking_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

// SeatReleaseRequested is the compensating action for a reservation whose
// saga failed downstream.
type SeatReleaseRequested struct {
	BookingID string `json:"booking_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
}
