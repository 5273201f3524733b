package domain

import "time"

// CartLine is one product's presence in a user's cart. The id is the
// server-assigned cart-line id, distinct from the referenced product id.
// TotalPrice is computed server-side and never recomputed locally.
type CartLine struct {
	ID                 int64     `json:"id"`
	ProductID          int64     `json:"productId"`
	ProductName        string    `json:"productName"`
	ProductDescription string    `json:"productDescription"`
	UnitPrice          int64     `json:"unitPrice"`
	Quantity           int       `json:"quantity"`
	TotalPrice         int64     `json:"totalPrice"`
	ProductImage       string    `json:"productImage,omitempty"`
	SellerName         string    `json:"sellerName"`
	AvailableStock     int       `json:"availableStock"`
	AddedAt            time.Time `json:"addedAt"`
}

// CartSummary is the server-computed aggregate over all cart lines.
type CartSummary struct {
	ItemCount   int   `json:"itemCount"`
	TotalAmount int64 `json:"totalAmount"`
}

type AddToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}
