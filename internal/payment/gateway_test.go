package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayClient_CreateOrder(t *testing.T) {
	var got OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "key_secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Nx1","entity":"order","amount":20000,"currency":"INR","receipt":"BK-20251220-ABCDEF","status":"created"}`))
	}))
	defer srv.Close()

	c := NewRazorpayClient(srv.URL+"/v1/", "rzp_test_key", "key_secret", time.Second)
	order, err := c.CreateOrder(context.Background(), OrderRequest{
		Amount:   20000,
		Currency: "INR",
		Receipt:  "BK-20251220-ABCDEF",
		Notes:    map[string]string{"booking_id": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "order_Nx1", order.ID)
	assert.Equal(t, int64(20000), order.Amount)
	assert.Equal(t, "created", order.Status)
	assert.Contains(t, string(order.Raw), `"entity":"order"`)

	assert.Equal(t, int64(20000), got.Amount)
	assert.Equal(t, "BK-20251220-ABCDEF", got.Receipt)
	assert.Equal(t, "1", got.Notes["booking_id"])
	assert.Equal(t, "rzp_test_key", c.KeyID())
}

func TestRazorpayClient_CreateOrderErrors(t *testing.T) {
	t.Run("gateway error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be at least INR 1.00"}}`))
		}))
		defer srv.Close()

		c := NewRazorpayClient(srv.URL, "rzp_test_key", "key_secret", time.Second)
		_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 50, Currency: "INR"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BAD_REQUEST_ERROR")
		assert.Contains(t, err.Error(), "(400)")
	})

	t.Run("missing order id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"created"}`))
		}))
		defer srv.Close()

		c := NewRazorpayClient(srv.URL, "rzp_test_key", "key_secret", time.Second)
		_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		c := NewRazorpayClient(srv.URL, "rzp_test_key", "key_secret", 50*time.Millisecond)
		_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
		assert.Error(t, err)
	})

	t.Run("caller cancels", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		c := NewRazorpayClient(srv.URL, "rzp_test_key", "key_secret", 5*time.Second)
		start := time.Now()
		_, err := c.CreateOrder(ctx, OrderRequest{Amount: 100, Currency: "INR"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("missing secret", func(t *testing.T) {
		c := NewRazorpayClient("http://127.0.0.1:0", "rzp_test_key", "", time.Second)
		_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
		assert.Error(t, err)
	})
}
