package domain

type Status string

const (
	StatusPlaced     Status = "placed"
	StatusAccepted   Status = "accepted"
	StatusProcessing Status = "processing"
	StatusOnTheWay   Status = "on_the_way"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

var transitions = map[Status][]Status{
	StatusPlaced:     {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusOnTheWay, StatusCancelled},
	StatusOnTheWay:   {StatusDelivered, StatusReturned},
	StatusDelivered:  {StatusReturned},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusAccepted, StatusProcessing, StatusOnTheWay, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsCompleted() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

var paymentRank = map[PaymentStatus]int{
	PaymentUnpaid:     0,
	PaymentFailed:     1,
	PaymentAuthorized: 2,
	PaymentPaid:       3,
	PaymentRefunded:   4,
}

// NextPaymentStatus resolves a requested payment status write against the
// current one. Writes never move an order backwards: paid cannot overwrite
// refunded and failed cannot overwrite authorized or paid.
func NextPaymentStatus(current, want PaymentStatus) (PaymentStatus, bool) {
	if current == want {
		return current, false
	}
	if paymentRank[want] < paymentRank[current] {
		return current, false
	}
	return want, true
}

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentPartial     FulfillmentStatus = "partial"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
)

// DeriveFulfillment computes fulfillment from ordered and countable shipped
// quantities.
func DeriveFulfillment(ordered, shipped int) FulfillmentStatus {
	switch {
	case ordered <= 0 || shipped <= 0:
		return FulfillmentUnfulfilled
	case shipped < ordered:
		return FulfillmentPartial
	default:
		return FulfillmentFulfilled
	}
}

// CanBeCancelled reports whether the order may still be cancelled.
func (o Order) CanBeCancelled() bool {
	return !o.Status.IsCompleted() && o.PaymentStatus != PaymentPaid
}
