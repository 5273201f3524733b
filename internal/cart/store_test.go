package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/domain"
)

// fakeBackend is an in-memory stand-in for the marketplace cart API. It
// tracks every request so tests can assert which calls were (not) issued.
type fakeBackend struct {
	mu      sync.Mutex
	lines   map[int64]domain.CartLine
	stock   map[int64]int
	prices  map[int64]int64
	nextID    int64
	log       []string
	blockCh   chan struct{}
	arrivedCh chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		lines:  make(map[int64]domain.CartLine),
		stock:  map[int64]int{7: 5, 8: 2},
		prices: map[int64]int64{7: 500, 8: 1200},
		nextID: 10,
	}
}

func (f *fakeBackend) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

func (f *fakeBackend) summary() domain.CartSummary {
	var s domain.CartSummary
	for _, l := range f.lines {
		s.ItemCount += l.Quantity
		s.TotalAmount += l.TotalPrice
	}
	return s
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	record := func(r *http.Request) {
		f.log = append(f.log, r.Method+" "+r.URL.Path)
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		lines := []domain.CartLine{}
		for _, l := range f.lines {
			lines = append(lines, l)
		}
		writeJSON(w, http.StatusOK, lines)
	})

	mux.HandleFunc("GET /api/cart/summary", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		writeJSON(w, http.StatusOK, f.summary())
	})

	mux.HandleFunc("POST /api/cart", func(w http.ResponseWriter, r *http.Request) {
		var req domain.AddToCartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)

		var line domain.CartLine
		for _, l := range f.lines {
			if l.ProductID == req.ProductID {
				line = l
				break
			}
		}
		if line.ID == 0 {
			f.nextID++
			line = domain.CartLine{
				ID:             f.nextID,
				ProductID:      req.ProductID,
				UnitPrice:      f.prices[req.ProductID],
				AvailableStock: f.stock[req.ProductID],
				AddedAt:        time.Now().UTC(),
			}
		}
		line.Quantity += req.Quantity
		if line.Quantity > f.stock[req.ProductID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "insufficient stock"})
			return
		}
		line.TotalPrice = line.UnitPrice * int64(line.Quantity)
		f.lines[line.ID] = line
		writeJSON(w, http.StatusCreated, line)
	})

	mux.HandleFunc("PUT /api/cart/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.blockCh != nil {
			select {
			case f.arrivedCh <- struct{}{}:
			default:
			}
			<-f.blockCh
		}
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))

		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)

		line, ok := f.lines[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "cart item not found"})
			return
		}
		if quantity > f.stock[line.ProductID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "insufficient stock"})
			return
		}
		line.Quantity = quantity
		line.TotalPrice = line.UnitPrice * int64(quantity)
		f.lines[id] = line
		writeJSON(w, http.StatusOK, line)
	})

	mux.HandleFunc("DELETE /api/cart/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		delete(f.lines, id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/cart", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		record(r)
		f.lines = make(map[int64]domain.CartLine)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func newTestStore(t *testing.T) (*Store, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL, server.Client())
	return NewStore(client, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), backend
}

func TestStore_Refresh(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	backend.lines[11] = domain.CartLine{ID: 11, ProductID: 7, Quantity: 2, UnitPrice: 500, TotalPrice: 1000, AvailableStock: 5}

	if err := store.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := store.State()
	if len(state.Lines) != 1 || state.Lines[0].ID != 11 {
		t.Fatalf("unexpected lines: %+v", state.Lines)
	}
	if state.Summary.ItemCount != 2 || state.Summary.TotalAmount != 1000 {
		t.Errorf("unexpected summary: %+v", state.Summary)
	}
	if state.Loading {
		t.Error("expected loading to be false after refresh settles")
	}
}

func TestStore_Add(t *testing.T) {
	t.Run("twice for the same product merges into one line", func(t *testing.T) {
		store, _ := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 7, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.Add(ctx, 7, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		state := store.State()
		if len(state.Lines) != 1 {
			t.Fatalf("expected a single merged line, got %d", len(state.Lines))
		}
		if state.Lines[0].Quantity != 2 {
			t.Errorf("expected server merge result 2, got %d", state.Lines[0].Quantity)
		}
		if state.Summary.ItemCount != 2 || state.Summary.TotalAmount != 1000 {
			t.Errorf("unexpected summary: %+v", state.Summary)
		}
	})

	t.Run("server stock rejection is surfaced without local mutation", func(t *testing.T) {
		store, _ := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 8, 99); err == nil {
			t.Fatal("expected error")
		}

		state := store.State()
		if len(state.Lines) != 0 {
			t.Errorf("failed add must not touch local lines: %+v", state.Lines)
		}
		if state.LastError != "insufficient stock" {
			t.Errorf("expected server message, got %q", state.LastError)
		}
	})
}

func TestStore_SetQuantity(t *testing.T) {
	t.Run("below 1 is a local no-op", func(t *testing.T) {
		store, backend := newTestStore(t)
		ctx := context.Background()

		if err := store.SetQuantity(ctx, 11, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := backend.requests(); len(got) != 0 {
			t.Errorf("expected no network calls, got %v", got)
		}
		if state := store.State(); state.Loading || state.LastError != "" {
			t.Errorf("expected untouched state, got %+v", state)
		}
	})

	t.Run("replaces the line and re-reads the summary from the server", func(t *testing.T) {
		store, backend := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 7, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lineID := store.State().Lines[0].ID

		if err := store.SetQuantity(ctx, lineID, 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		state := store.State()
		if state.Lines[0].Quantity != 3 {
			t.Errorf("expected quantity 3, got %d", state.Lines[0].Quantity)
		}
		// The total comes back from the server, never from local arithmetic.
		if state.Summary.TotalAmount != 1500 {
			t.Errorf("expected server-computed total 1500, got %d", state.Summary.TotalAmount)
		}

		var summaryFetches int
		for _, req := range backend.requests() {
			if req == "GET /api/cart/summary" {
				summaryFetches++
			}
		}
		if summaryFetches != 2 {
			t.Errorf("expected a summary re-fetch per mutation, got %d fetches", summaryFetches)
		}
	})

	t.Run("server rejection leaves prior state untouched", func(t *testing.T) {
		store, _ := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 7, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lineID := store.State().Lines[0].ID

		if err := store.SetQuantity(ctx, lineID, 50); err == nil {
			t.Fatal("expected stock rejection")
		}

		state := store.State()
		if state.Lines[0].Quantity != 2 {
			t.Errorf("rejected update must not change quantity, got %d", state.Lines[0].Quantity)
		}
		if state.LastError != "insufficient stock" {
			t.Errorf("expected server message, got %q", state.LastError)
		}
	})

	t.Run("second update to the same line while one is in flight is rejected", func(t *testing.T) {
		store, backend := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 7, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lineID := store.State().Lines[0].ID

		backend.blockCh = make(chan struct{})
		backend.arrivedCh = make(chan struct{}, 1)
		done := make(chan error, 1)
		go func() { done <- store.SetQuantity(ctx, lineID, 2) }()

		// Wait for the first update to reach the backend.
		<-backend.arrivedCh

		if err := store.SetQuantity(ctx, lineID, 3); !errors.Is(err, ErrLineBusy) {
			t.Fatalf("expected ErrLineBusy, got %v", err)
		}

		close(backend.blockCh)
		if err := <-done; err != nil {
			t.Fatalf("first update failed: %v", err)
		}
	})
}

func TestStore_Remove(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, 7, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Add(ctx, 8, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var lineID int64
	for _, l := range store.State().Lines {
		if l.ProductID == 7 {
			lineID = l.ID
		}
	}

	if err := store.Remove(ctx, lineID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := store.State()
	if len(state.Lines) != 1 || state.Lines[0].ProductID != 8 {
		t.Errorf("unexpected lines after remove: %+v", state.Lines)
	}
	if state.Summary.ItemCount != 1 || state.Summary.TotalAmount != 1200 {
		t.Errorf("unexpected summary: %+v", state.Summary)
	}
}

func TestStore_Clear(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, 7, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := len(backend.requests())
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := store.State()
	if len(state.Lines) != 0 || state.Summary != (domain.CartSummary{}) {
		t.Errorf("expected empty state, got %+v", state)
	}

	// Clear resets the summary locally; no re-fetch follows the DELETE.
	after := backend.requests()[before:]
	if len(after) != 1 || after[0] != "DELETE /api/cart" {
		t.Errorf("unexpected requests during clear: %v", after)
	}
}

func TestStore_Convergence(t *testing.T) {
	// After any sequence of individually successful mutations, local state
	// must equal what a fresh refresh returns.
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, 7, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Add(ctx, 8, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var lineID int64
	for _, l := range store.State().Lines {
		if l.ProductID == 7 {
			lineID = l.ID
		}
	}
	if err := store.SetQuantity(ctx, lineID, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled := store.State()

	if err := store.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh := store.State()

	if settled.Summary != fresh.Summary {
		t.Errorf("summary diverged: settled %+v, fresh %+v", settled.Summary, fresh.Summary)
	}
	if len(settled.Lines) != len(fresh.Lines) {
		t.Fatalf("line count diverged: %d vs %d", len(settled.Lines), len(fresh.Lines))
	}
	settledByID := make(map[int64]domain.CartLine)
	for _, l := range settled.Lines {
		settledByID[l.ID] = l
	}
	for _, l := range fresh.Lines {
		got := settledByID[l.ID]
		if got.Quantity != l.Quantity || got.TotalPrice != l.TotalPrice {
			t.Errorf("line %d diverged: settled %+v, fresh %+v", l.ID, got, l)
		}
	}
}

func TestStore_Close(t *testing.T) {
	t.Run("operations after close are no-ops", func(t *testing.T) {
		store, backend := newTestStore(t)
		ctx := context.Background()

		store.Close()
		if err := store.Add(ctx, 7, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := backend.requests(); len(got) != 0 {
			t.Errorf("closed store must not issue requests, got %v", got)
		}
	})

	t.Run("a late response never writes into closed state", func(t *testing.T) {
		store, backend := newTestStore(t)
		ctx := context.Background()

		if err := store.Add(ctx, 7, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lineID := store.State().Lines[0].ID

		backend.blockCh = make(chan struct{})
		backend.arrivedCh = make(chan struct{}, 1)
		done := make(chan error, 1)
		go func() { done <- store.SetQuantity(ctx, lineID, 3) }()

		<-backend.arrivedCh
		store.Close()
		close(backend.blockCh)
		<-done

		state := store.State()
		if len(state.Lines) != 0 {
			t.Errorf("late response leaked into closed store: %+v", state.Lines)
		}
	})
}

func TestStore_TransportFailure(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:0", &http.Client{Timeout: time.Second})
	store := NewStore(client, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := store.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	state := store.State()
	if state.LastError != "failed to load cart" {
		t.Errorf("expected generic transport message, got %q", state.LastError)
	}
	if state.Loading {
		t.Error("expected loading to settle after failure")
	}
}
