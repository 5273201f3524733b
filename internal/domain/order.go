package domain

import "time"

type OrderItem struct {
	ID                 int64     `json:"id"`
	ProductID          int64     `json:"productId"`
	ProductName        string    `json:"productName"`
	ProductDescription string    `json:"productDescription"`
	ProductImageURL    string    `json:"productImageUrl,omitempty"`
	AgentName          string    `json:"agentName"`
	AgentID            int64     `json:"agentId"`
	Quantity           int       `json:"quantity"`
	UnitPrice          int64     `json:"unitPrice"`
	TotalPrice         int64     `json:"totalPrice"`
	CreatedAt          time.Time `json:"createdAt"`
}

type UserSummary struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	UserType  string `json:"userType"`
}

// Order is immutable once placed: item composition and pricing are a
// snapshot taken at order time. Only Status and the delivery-date fields
// change afterwards, and only through server calls.
type Order struct {
	ID                   int64       `json:"id"`
	OrderNumber          string      `json:"orderNumber"`
	Status               OrderStatus `json:"status"`
	StatusDisplayName    string      `json:"statusDisplayName"`
	TotalAmount          int64       `json:"totalAmount"`
	TotalItems           int         `json:"totalItems"`
	ShippingAddress      string      `json:"shippingAddress"`
	ReceiverName         string      `json:"receiverName"`
	ReceiverPhone        string      `json:"receiverPhone"`
	Notes                string      `json:"notes,omitempty"`
	ExpectedDeliveryDate *time.Time  `json:"expectedDeliveryDate,omitempty"`
	ActualDeliveryDate   *time.Time  `json:"actualDeliveryDate,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
	OrderItems           []OrderItem `json:"orderItems"`
	User                 UserSummary `json:"user"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderRequest covers both submission modes: Items is nil for the
// cart-derived path (the server materializes the order from the stored
// cart) and non-empty for the explicit-items path.
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items,omitempty"`
	ReceiverName    string             `json:"receiverName"`
	ReceiverPhone   string             `json:"receiverPhone"`
	ShippingAddress string             `json:"shippingAddress"`
	Notes           string             `json:"notes,omitempty"`
}
