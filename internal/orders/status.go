package orders

import "fmt"

type Status string

const (
	StatusPending         Status = "pending"
	StatusPaid            Status = "paid"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusRefundRequested Status = "refund_requested"
	StatusRefunded        Status = "refunded"
	StatusCancelled       Status = "cancelled"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table. Callers map it to a state-conflict response.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

// transitions lists every legal edge of the order lifecycle. Orders enter at
// paid (there is no pre-payment persisted state), delivered/refunded/cancelled
// are terminal.
var transitions = map[Status][]Status{
	StatusPending:         {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusProcessing, StatusRefundRequested, StatusCancelled},
	StatusProcessing:      {StatusShipped, StatusRefundRequested, StatusCancelled},
	StatusShipped:         {StatusDelivered, StatusRefundRequested, StatusCancelled},
	StatusDelivered:       {StatusRefundRequested},
	StatusRefundRequested: {StatusRefunded, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusRefunded:        {},
	StatusCancelled:       {},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusRefunded || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ValidateTransition checks a status change requested by an admin or the
// refund workflow. Shipping an order requires a tracking number to be
// attached in the same write.
func ValidateTransition(from, to Status, trackingNumber string) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("unknown order status %q -> %q", from, to)
	}
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition{From: from, To: to}
	}
	if to == StatusShipped && trackingNumber == "" {
		return fmt.Errorf("cannot mark order shipped without a tracking number")
	}
	return nil
}
