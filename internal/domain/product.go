package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type UserType string

const (
	UserTypeBuyer UserType = "BUYER"
	UserTypeAgent UserType = "AGENT"
	UserTypeBoth  UserType = "BOTH"
)

// User is the authenticated identity consumed from the remote auth API.
// This repository never owns or mutates it.
type User struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Role      UserRole `json:"role"`
	UserType  UserType `json:"userType,omitempty"`
}

// IsAgent reports whether the user can fulfill orders.
func (u User) IsAgent() bool {
	return u.UserType == UserTypeAgent || u.UserType == UserTypeBoth
}

type ProductStatus string

const (
	ProductActive     ProductStatus = "ACTIVE"
	ProductInactive   ProductStatus = "INACTIVE"
	ProductOutOfStock ProductStatus = "OUT_OF_STOCK"
)

type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       int64         `json:"price"`
	Quantity    int           `json:"quantity"`
	Category    string        `json:"category"`
	Brand       string        `json:"brand"`
	ImageURL    string        `json:"imageUrl"`
	Status      ProductStatus `json:"status"`
	Agent       User          `json:"agent"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// CanAddToCart reports whether u may put p in their cart: the product must
// be in stock and u must not be the agent selling it.
func (p Product) CanAddToCart(u User) bool {
	return p.Status == ProductActive && p.Quantity > 0 && p.Agent.ID != u.ID
}
