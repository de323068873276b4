// Package billing wraps the payment provider: customers, hosted checkout
// sessions, subscriptions and the signed webhook event stream.
package billing

import (
	"context"
	"time"
)

// Checkout session modes and the metadata key used to carry the purchaser email.
const (
	ModeSubscription      = "subscription"
	MetadataCustomerEmail = "customer_email"
)

// Customer is a billing customer record.
type Customer struct {
	ID    string
	Email string
}

// SessionParams describes a hosted checkout session.
type SessionParams struct {
	CustomerID string
	PriceID    string
	Email      string
	SuccessURL string
	CancelURL  string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// Subscription is the provider's view of a subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CanceledAt         *time.Time
}

// Gateway is the Payment Capability.
type Gateway interface {
	// FindCustomerByEmail returns shared.ErrNotFound when no customer exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
}

// unixTime converts provider Unix seconds to UTC; zero stays the zero time.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := unixTime(sec)
	return &t
}
