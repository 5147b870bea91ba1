package domain

const (
	EventPaymentCaptured = "PaymentCaptured"
	EventPaymentFailed   = "PaymentFailed"
	EventRefundSucceeded = "RefundSucceeded"
)

type PaymentCaptured struct {
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	Provider  string `json:"provider"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type PaymentFailed struct {
	OrderID           int64  `json:"order_id"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
}

type RefundSucceededEvent struct {
	RefundID  int64  `json:"refund_id"`
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	Amount    string `json:"amount"`
	Full      bool   `json:"full"`
}
