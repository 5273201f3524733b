package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ycliao/daigou-storefront/internal/analytics"
	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/cart"
	"github.com/ycliao/daigou-storefront/internal/domain"
	"github.com/ycliao/daigou-storefront/internal/telemetry"
)

// ErrEmptyCart aborts a submission whose effective item set is empty. No
// order-creation request is ever sent with zero items; the caller redirects
// back to the cart view.
var ErrEmptyCart = errors.New("cart is empty, nothing to check out")

// ValidationError carries the field-scoped failures of a submission that
// never reached the network.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout validation failed for %d field(s)", len(e.Fields))
}

// Result is handed to the read-only confirmation view on success.
type Result struct {
	Order   *domain.Order
	Message string
}

// Workflow turns a non-empty cart (or an explicit item list) plus recipient
// details into a created Order. It is short-lived and linear: validate,
// submit, hand off. On failure the caller's state is left intact for retry.
type Workflow struct {
	client   *api.Client
	store    *cart.Store
	producer *analytics.Producer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewWorkflow(client *api.Client, store *cart.Store, producer *analytics.Producer, metrics *telemetry.Metrics, logger *slog.Logger) *Workflow {
	return &Workflow{
		client:   client,
		store:    store,
		producer: producer,
		metrics:  metrics,
		logger:   logger,
	}
}

// SubmitFromCart creates an order from the user's persisted cart. The
// server empties the cart as part of the call; the local store is cleared
// afterwards as a mirror, not as a second source of truth.
func (w *Workflow) SubmitFromCart(ctx context.Context, recipient Recipient) (*Result, error) {
	if errs := recipient.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if len(w.store.State().Lines) == 0 {
		return nil, ErrEmptyCart
	}

	recipient = recipient.normalized()
	order, err := w.client.CreateOrderFromCart(ctx, domain.CreateOrderRequest{
		ReceiverName:    recipient.Name,
		ReceiverPhone:   recipient.Phone,
		ShippingAddress: recipient.Address,
		Notes:           recipient.Notes,
	})
	if err != nil {
		w.logger.Error("failed to create order from cart", "error", err)
		return nil, err
	}

	w.store.ClearLocal()
	w.finish(ctx, order, true)

	return &Result{Order: order, Message: "Order placed successfully!"}, nil
}

// SubmitItems creates an order from an explicit (productId, quantity) list,
// bypassing the stored cart entirely.
func (w *Workflow) SubmitItems(ctx context.Context, items []domain.OrderItemRequest, recipient Recipient) (*Result, error) {
	if errs := recipient.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	recipient = recipient.normalized()
	order, err := w.client.CreateOrder(ctx, domain.CreateOrderRequest{
		Items:           items,
		ReceiverName:    recipient.Name,
		ReceiverPhone:   recipient.Phone,
		ShippingAddress: recipient.Address,
		Notes:           recipient.Notes,
	})
	if err != nil {
		w.logger.Error("failed to create order", "error", err)
		return nil, err
	}

	w.finish(ctx, order, false)

	return &Result{Order: order, Message: "Order placed successfully!"}, nil
}

func (w *Workflow) finish(ctx context.Context, order *domain.Order, fromCart bool) {
	w.logger.Info("order placed",
		"order_number", order.OrderNumber,
		"total_items", order.TotalItems,
		"total_amount", order.TotalAmount,
		"from_cart", fromCart,
	)
	w.metrics.RecordOrderPlaced(ctx, fromCart)

	if w.producer != nil {
		event := domain.OrderPlacedEvent{
			OrderNumber: order.OrderNumber,
			UserID:      order.User.ID,
			TotalItems:  order.TotalItems,
			TotalAmount: order.TotalAmount,
			FromCart:    fromCart,
			Timestamp:   time.Now().UTC(),
		}
		if err := w.producer.Publish(ctx, order.OrderNumber, event); err != nil {
			w.logger.Error("failed to publish order placed event", "error", err, "order_number", order.OrderNumber)
		}
	}
}
