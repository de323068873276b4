package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/tricktime/tricktime/internal/shared"
)

func newTestGateway(t *testing.T, handler http.Handler) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return NewStripeGateway("sk_test_123", 5*time.Second, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripeGatewayCustomerLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("email") == "known@x.com" {
				_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,"data":[{"id":"cus_known","object":"customer","email":"known@x.com"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"object":"list","url":"/v1/customers","has_more":false,"data":[]}`))
		case http.MethodPost:
			require.NoError(t, r.ParseForm())
			_, _ = w.Write([]byte(`{"id":"cus_new","object":"customer","email":"` + r.PostForm.Get("email") + `"}`))
		}
	})
	gw := newTestGateway(t, mux)
	ctx := context.Background()

	found, err := gw.FindCustomerByEmail(ctx, "known@x.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_known", found.ID)

	_, err = gw.FindCustomerByEmail(ctx, "new@x.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	created, err := gw.CreateCustomer(ctx, "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", created.ID)
	assert.Equal(t, "new@x.com", created.Email)
}

func TestStripeGatewayCheckoutSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_1", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "a@b.com", r.PostForm.Get("metadata[customer_email]"))
		assert.Empty(t, r.PostForm.Get("payment_method_types[0]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	})
	gw := newTestGateway(t, mux)

	sess, err := gw.CreateCheckoutSession(context.Background(), SessionParams{
		CustomerID: "cus_1",
		PriceID:    "price_1",
		Email:      "a@b.com",
		SuccessURL: "http://localhost:5173/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "http://localhost:5173/",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)
}

func TestStripeGatewayGetSubscription(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/subscriptions/sub_1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",
			"current_period_start":1700000000,"current_period_end":1702592000,"canceled_at":null,
			"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_1","object":"price"}}]}}`))
	})
	mux.HandleFunc("/v1/subscriptions/sub_missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription: 'sub_missing'"}}`))
	})
	gw := newTestGateway(t, mux)

	sub, err := gw.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sub.CurrentPeriodStart)
	assert.Nil(t, sub.CanceledAt)

	_, err = gw.GetSubscription(context.Background(), "sub_missing")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "No such subscription: 'sub_missing'", provErr.Error())
	assert.Equal(t, http.StatusNotFound, provErr.Status)
}
