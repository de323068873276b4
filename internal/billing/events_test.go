package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_test_1",
			"mode": "subscription",
			"customer": "cus_1",
			"subscription": "sub_1",
			"customer_details": {"email": "C@D.com "},
			"metadata": {"customer_email": "fallback@d.com"}
		}}
	}`)

	evt, err := ParseEvent(payload)
	require.NoError(t, err)
	completed, ok := evt.(CheckoutSessionCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", completed.EventID())
	assert.Equal(t, ModeSubscription, completed.Mode)
	assert.Equal(t, "cus_1", completed.CustomerID)
	assert.Equal(t, "sub_1", completed.SubscriptionID)
	assert.Equal(t, "C@D.com ", completed.PurchaserEmail())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), completed.Created)
}

func TestParseCheckoutSessionFallsBackToMetadataEmail(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{
		"id":"cs_2","mode":"subscription","customer":{"id":"cus_9","object":"customer"},
		"subscription":"sub_9","customer_details":null,"metadata":{"customer_email":"meta@d.com"}}}}`)

	evt, err := ParseEvent(payload)
	require.NoError(t, err)
	completed := evt.(CheckoutSessionCompleted)
	assert.Equal(t, "cus_9", completed.CustomerID)
	assert.Equal(t, "meta@d.com", completed.PurchaserEmail())
}

func TestParseSubscriptionChanged(t *testing.T) {
	payload := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{
		"id":"sub_1","customer":"cus_1","status":"canceled",
		"current_period_start":1700000000,"current_period_end":1702592000,"canceled_at":1701000000,
		"items":{"data":[{"price":{"id":"price_1"}}]}}}}`)

	evt, err := ParseEvent(payload)
	require.NoError(t, err)
	changed, ok := evt.(SubscriptionChanged)
	require.True(t, ok)
	assert.True(t, changed.Deleted())
	assert.Equal(t, "canceled", changed.Subscription.Status)
	assert.Equal(t, "price_1", changed.Subscription.PriceID)
	require.NotNil(t, changed.Subscription.CanceledAt)
	assert.Equal(t, time.Unix(1701000000, 0).UTC(), *changed.Subscription.CanceledAt)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), changed.Subscription.CurrentPeriodEnd)
}

func TestParseSubscriptionPeriodFromItems(t *testing.T) {
	payload := []byte(`{"id":"evt_4","type":"customer.subscription.updated","data":{"object":{
		"id":"sub_1","customer":"cus_1","status":"active","canceled_at":null,
		"items":{"data":[{"current_period_start":1700000000,"current_period_end":1702592000,"price":{"id":"price_1"}}]}}}}`)

	evt, err := ParseEvent(payload)
	require.NoError(t, err)
	changed := evt.(SubscriptionChanged)
	assert.False(t, changed.Deleted())
	assert.Nil(t, changed.Subscription.CanceledAt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), changed.Subscription.CurrentPeriodStart)
}

func TestParseUnhandledAndMalformed(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"id":"evt_5","type":"invoice.paid","data":{"object":{}}}`))
	require.NoError(t, err)
	_, ok := evt.(UnhandledEvent)
	assert.True(t, ok)
	assert.Equal(t, "invoice.paid", evt.EventType())

	_, err = ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseEvent([]byte(`{"id":"evt_6"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	secret := "whsec_test"

	require.NoError(t, VerifySignature(payload, signPayload(t, payload, secret, time.Now()), secret))
	assert.ErrorIs(t, VerifySignature(payload, signPayload(t, payload, "whsec_other", time.Now()), secret), ErrSignature)
	assert.ErrorIs(t, VerifySignature(payload, signPayload(t, payload, secret, time.Now().Add(-time.Hour)), secret), ErrSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=1,v1=abc", ""), ErrSignature)
}
