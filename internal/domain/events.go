package domain

import "time"

// Storefront analytics events. Published best-effort; the shop keeps
// working when no broker is configured.

type CartActivityEvent struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	ProductID int64     `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderPlacedEvent struct {
	OrderNumber string    `json:"order_number"`
	UserID      int64     `json:"user_id"`
	TotalItems  int       `json:"total_items"`
	TotalAmount int64     `json:"total_amount"`
	FromCart    bool      `json:"from_cart"`
	Timestamp   time.Time `json:"timestamp"`
}
