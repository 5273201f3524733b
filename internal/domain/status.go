package domain

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// nextStatuses mirrors the server-side order lifecycle. It is advisory
// only: it decides which action controls to render, never whether a
// transition happens. The server re-validates every transition and its
// returned Order is the new source of truth.
var nextStatuses = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

// NextStatuses returns the legal next statuses for the agent action menu.
// Terminal or unrecognized statuses yield an empty set, hiding all
// transition controls.
func NextStatuses(s OrderStatus) []OrderStatus {
	next, ok := nextStatuses[s]
	if !ok {
		return nil
	}
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanCancel reports whether the owning user may still cancel the order.
func CanCancel(s OrderStatus) bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// CanAdvanceStatus reports whether the fulfilling agent may move the order
// forward, i.e. the order is in any non-terminal-for-fulfillment state.
func CanAdvanceStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

var statusDisplayNames = map[OrderStatus]string{
	OrderStatusPending:    "Pending",
	OrderStatusConfirmed:  "Confirmed",
	OrderStatusProcessing: "Processing",
	OrderStatusShipped:    "Shipped",
	OrderStatusDelivered:  "Delivered",
	OrderStatusCompleted:  "Completed",
	OrderStatusCancelled:  "Cancelled",
	OrderStatusRefunded:   "Refunded",
}

// Known reports whether s is one of the marketplace's status values.
func (s OrderStatus) Known() bool {
	_, ok := statusDisplayNames[s]
	return ok
}

func (s OrderStatus) DisplayName() string {
	if name, ok := statusDisplayNames[s]; ok {
		return name
	}
	return string(s)
}
