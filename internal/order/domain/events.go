package domain

import "time"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// StatusEvent is one entry of the append-only order timeline.
type StatusEvent struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"order_id"`
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	HappenedAt time.Time `json:"happened_at"`
}

type OrderPlaced struct {
	OrderID    int64  `json:"order_id"`
	Number     string `json:"number"`
	UserID     *int64 `json:"user_id,omitempty"`
	GrandTotal string `json:"grand_total"`
	Currency   string `json:"currency"`
	ItemCount  int    `json:"item_count"`
}

type OrderStatusChanged struct {
	OrderID int64  `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	ActorID *int64 `json:"actor_id,omitempty"`
}
