package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]CartLine{
			{Product: Product{ID: 1, Name: "mug", Price: 4000}, Quantity: 2},
			{Product: Product{ID: 2, Name: "plate", Price: 2000}, Quantity: 1},
		})
	})
	mux.HandleFunc("POST /api/cart", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "database unavailable"})
	})
	mux.HandleFunc("POST /api/coupons/validate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Code != "GIFTABC123" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "coupon not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":            "coupon is valid",
			"code":               req.Code,
			"discountPercentage": 10,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCartStore_RecomputesTotalsOnLoadAndCoupon(t *testing.T) {
	srv := newStoreServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)
	cart := NewCartStore(c)

	ctx := context.Background()
	cart.Load(ctx)
	require.Empty(t, cart.Drain())

	subtotal, total := cart.Totals()
	assert.EqualValues(t, 10000, subtotal)
	assert.EqualValues(t, 10000, total)

	cart.ApplyCoupon(ctx, "GIFTABC123")
	subtotal, total = cart.Totals()
	assert.EqualValues(t, 10000, subtotal)
	assert.EqualValues(t, 9000, total)

	notes := cart.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "success", notes[0].Level)

	cart.RemoveCoupon()
	_, total = cart.Totals()
	assert.EqualValues(t, 10000, total)
}

func TestCartStore_InvalidCouponLeavesTotalsAlone(t *testing.T) {
	srv := newStoreServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)
	cart := NewCartStore(c)

	ctx := context.Background()
	cart.Load(ctx)
	cart.ApplyCoupon(ctx, "NOPE")

	_, total := cart.Totals()
	assert.EqualValues(t, 10000, total)
	assert.Nil(t, cart.Coupon())

	notes := cart.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "error", notes[0].Level)
	assert.Contains(t, notes[0].Message, "coupon not found")
}

func TestCartStore_OptimisticAddSurvivesRequestFailure(t *testing.T) {
	srv := newStoreServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)
	cart := NewCartStore(c)

	ctx := context.Background()
	cart.Load(ctx)
	cart.Add(ctx, Product{ID: 3, Name: "bowl", Price: 1500})

	// The add failed server-side but the optimistic line stays.
	lines := cart.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "bowl", lines[2].Name)

	subtotal, _ := cart.Totals()
	assert.EqualValues(t, 11500, subtotal)

	notes := cart.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "error", notes[0].Level)
}

func TestCartStore_QuantityZeroRemovesLineLocally(t *testing.T) {
	srv := newStoreServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)
	cart := NewCartStore(c)

	ctx := context.Background()
	cart.Load(ctx)
	cart.UpdateQuantity(ctx, 1, 0)

	lines := cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "plate", lines[0].Name)

	subtotal, _ := cart.Totals()
	assert.EqualValues(t, 2000, subtotal)
}
