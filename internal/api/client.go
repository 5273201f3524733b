package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ycliao/daigou-storefront/internal/domain"
)

// Client talks to the remote marketplace API, the owner of all persistent
// state. Every method is a single request/response round trip; nothing is
// cached or retried here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithToken returns a copy of the client that sends the given bearer token
// on every request. The receiver is not modified, so one base client can be
// shared across sessions.
func (c *Client) WithToken(token string) *Client {
	scoped := *c
	scoped.token = token
	return &scoped
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the remote API's flat login payload: a bearer token plus
// the identity fields of the authenticated user.
type AuthResponse struct {
	Token     string          `json:"token"`
	Type      string          `json:"type"`
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Role      domain.UserRole `json:"role"`
	UserType  domain.UserType `json:"userType,omitempty"`
}

func (a AuthResponse) User() domain.User {
	return domain.User{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		UserType:  a.UserType,
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var auth AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", authRequest{Email: email, Password: password}, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) Product(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) CartLines(ctx context.Context) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := c.do(ctx, http.MethodGet, "/api/cart", nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) (*domain.CartLine, error) {
	var line domain.CartLine
	req := domain.AddToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/api/cart", req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) UpdateCartLine(ctx context.Context, lineID int64, quantity int) (*domain.CartLine, error) {
	var line domain.CartLine
	path := fmt.Sprintf("/api/cart/%d?quantity=%d", lineID, quantity)
	if err := c.do(ctx, http.MethodPut, path, nil, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) RemoveCartLine(ctx context.Context, lineID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/cart/"+strconv.FormatInt(lineID, 10), nil, nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/cart", nil, nil)
}

func (c *Client) CartSummary(ctx context.Context) (*domain.CartSummary, error) {
	var summary domain.CartSummary
	if err := c.do(ctx, http.MethodGet, "/api/cart/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrderFromCart asks the server to materialize an order from the
// caller's persisted cart; no item list is sent. The server empties the
// cart as part of the call.
func (c *Client) CreateOrderFromCart(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	req.Items = nil
	var order domain.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders/from-cart", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) Order(ctx context.Context, id int64) (*domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(id, 10), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UserOrders(ctx context.Context, page, size int) ([]domain.Order, error) {
	var orders []domain.Order
	path := fmt.Sprintf("/api/orders?page=%d&size=%d", page, size)
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) AllUserOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/all", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) AgentOrders(ctx context.Context, page, size int) ([]domain.Order, error) {
	var orders []domain.Order
	path := fmt.Sprintf("/api/orders/agent?page=%d&size=%d", page, size)
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.Order, error) {
	var order domain.Order
	path := fmt.Sprintf("/api/orders/%d/status", id)
	if err := c.do(ctx, http.MethodPut, path, updateStatusRequest{Status: status}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var order domain.Order
	path := fmt.Sprintf("/api/orders/%d/cancel", id)
	if err := c.do(ctx, http.MethodPut, path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
