package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/domain"
)

func newCatalogService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL, server.Client())
	return NewService(client, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), server
}

func TestService_Products(t *testing.T) {
	t.Run("reads through to the API without a cache", func(t *testing.T) {
		var hits int
		service, _ := newCatalogService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/products" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			hits++
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]domain.Product{{ID: 7, Name: "matcha kit", Price: 500, Quantity: 5}})
		}))

		products, err := service.Products(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(products) != 1 || products[0].ID != 7 {
			t.Fatalf("unexpected products: %+v", products)
		}

		// No cache configured: a second read hits the API again.
		if _, err := service.Products(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits != 2 {
			t.Errorf("expected 2 API hits, got %d", hits)
		}
	})

	t.Run("API errors propagate", func(t *testing.T) {
		service, _ := newCatalogService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		_, err := service.Products(context.Background())
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %v", err)
		}
	})
}

func TestService_Product(t *testing.T) {
	service, _ := newCatalogService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/7" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.Product{ID: 7, Name: "matcha kit", Status: domain.ProductActive})
	}))

	product, err := service.Product(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Name != "matcha kit" {
		t.Errorf("unexpected product: %+v", product)
	}
}
