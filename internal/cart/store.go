package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/domain"
	"github.com/ycliao/daigou-storefront/internal/telemetry"
)

// ErrLineBusy is returned when a mutation targets a cart line that already
// has a request in flight. The caller should re-trigger once it settles.
var ErrLineBusy = errors.New("cart line update already in progress")

// Store owns the client-visible cart state for one session and keeps it
// consistent with the marketplace API after every mutation. Local lines are
// updated from the server's returned line, and the summary is always
// re-fetched rather than derived, so server-side business rules the client
// does not model (promotions, rounding) can never drift out of it.
//
// Mutations are not serialized against each other beyond the per-line
// guard; the only guarantee is convergence with a fresh Refresh after all
// in-flight operations settle.
type Store struct {
	client  *api.Client
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	lines    []domain.CartLine
	summary  domain.CartSummary
	pending  int
	lastErr  string
	closed   bool
	inflight map[int64]struct{}
}

// State is a point-in-time snapshot handed to the view layer.
type State struct {
	Lines     []domain.CartLine
	Summary   domain.CartSummary
	Loading   bool
	LastError string
}

func NewStore(client *api.Client, metrics *telemetry.Metrics, logger *slog.Logger) *Store {
	return &Store{
		client:   client,
		metrics:  metrics,
		logger:   logger,
		inflight: make(map[int64]struct{}),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)

	return State{
		Lines:     lines,
		Summary:   s.summary,
		Loading:   s.pending > 0,
		LastError: s.lastErr,
	}
}

// Close tears the store down on logout. Responses from requests still in
// flight are discarded instead of written into dead state.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.lines = nil
	s.summary = domain.CartSummary{}
	s.lastErr = ""
}

// Refresh fetches the full line list and the summary in parallel and
// replaces local state wholesale.
func (s *Store) Refresh(ctx context.Context) error {
	if !s.begin() {
		return nil
	}

	var (
		lines   []domain.CartLine
		summary *domain.CartSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = s.client.CartLines(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.client.CartSummary(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.fail("failed to load cart", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.closed {
		return nil
	}
	s.lines = lines
	s.summary = *summary
	return nil
}

// Add asks the server to add or merge quantity of a product into the cart.
// The returned canonical line replaces any local line for the same product,
// so calling Add twice for one product converges on the server's merge
// result rather than a locally assumed doubling.
func (s *Store) Add(ctx context.Context, productID int64, quantity int) error {
	if !s.begin() {
		return nil
	}

	line, err := s.client.AddToCart(ctx, productID, quantity)
	s.recordMutation(ctx, "add", err)
	if err != nil {
		s.fail("failed to add item to cart", err)
		return err
	}

	s.mu.Lock()
	if !s.closed {
		s.mergeLine(*line)
	}
	s.mu.Unlock()

	return s.refetchSummary(ctx)
}

// SetQuantity updates one line's quantity. Values below 1 are rejected
// locally as a no-op: no request is issued and no state changes. The stock
// ceiling is only advisory here; if the server rejects the update the error
// is surfaced and local state is left untouched.
func (s *Store) SetQuantity(ctx context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		return nil
	}
	if err := s.acquireLine(lineID); err != nil {
		return err
	}
	defer s.releaseLine(lineID)

	if !s.begin() {
		return nil
	}

	line, err := s.client.UpdateCartLine(ctx, lineID, quantity)
	s.recordMutation(ctx, "set_quantity", err)
	if err != nil {
		s.fail("failed to update quantity", err)
		return err
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.lines {
			if s.lines[i].ID == line.ID {
				s.lines[i] = *line
				break
			}
		}
	}
	s.mu.Unlock()

	return s.refetchSummary(ctx)
}

// Remove deletes one line server-side and mirrors the removal locally.
func (s *Store) Remove(ctx context.Context, lineID int64) error {
	if err := s.acquireLine(lineID); err != nil {
		return err
	}
	defer s.releaseLine(lineID)

	if !s.begin() {
		return nil
	}

	err := s.client.RemoveCartLine(ctx, lineID)
	s.recordMutation(ctx, "remove", err)
	if err != nil {
		s.fail("failed to remove item", err)
		return err
	}

	s.mu.Lock()
	if !s.closed {
		kept := s.lines[:0]
		for _, l := range s.lines {
			if l.ID != lineID {
				kept = append(kept, l)
			}
		}
		s.lines = kept
	}
	s.mu.Unlock()

	return s.refetchSummary(ctx)
}

// Clear empties the cart server-side and locally in one shot. The summary
// is reset to zero without a re-fetch.
func (s *Store) Clear(ctx context.Context) error {
	if !s.begin() {
		return nil
	}

	err := s.client.ClearCart(ctx)
	s.recordMutation(ctx, "clear", err)
	if err != nil {
		s.fail("failed to clear cart", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.closed {
		return nil
	}
	s.lines = nil
	s.summary = domain.CartSummary{}
	return nil
}

// ClearLocal resets local state without a server call, mirroring a clear
// the server already performed (order placed from cart).
func (s *Store) ClearLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lines = nil
	s.summary = domain.CartSummary{}
	s.lastErr = ""
}

func (s *Store) mergeLine(line domain.CartLine) {
	for i := range s.lines {
		if s.lines[i].ProductID == line.ProductID {
			s.lines[i] = line
			return
		}
	}
	s.lines = append(s.lines, line)
}

// refetchSummary trusts the server for aggregates after every mutation.
func (s *Store) refetchSummary(ctx context.Context) error {
	summary, err := s.client.CartSummary(ctx)
	if err != nil {
		s.fail("failed to load cart summary", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.closed {
		return nil
	}
	s.summary = *summary
	return nil
}

// begin marks an operation in flight and clears the previous error. It
// reports false when the store has been closed.
func (s *Store) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.pending++
	s.lastErr = ""
	return true
}

func (s *Store) fail(fallback string, err error) {
	s.logger.Error(fallback, "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.closed {
		return
	}
	s.lastErr = displayMessage(err, fallback)
}

func (s *Store) acquireLine(lineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[lineID]; busy {
		return ErrLineBusy
	}
	s.inflight[lineID] = struct{}{}
	return nil
}

func (s *Store) releaseLine(lineID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, lineID)
}

func (s *Store) recordMutation(ctx context.Context, op string, err error) {
	s.metrics.RecordCartMutation(ctx, op, err)
}

// displayMessage prefers the server's opaque message when one was sent and
// falls back to a generic one for transport failures.
func displayMessage(err error, fallback string) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
