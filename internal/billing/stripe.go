package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/tricktime/tricktime/internal/shared"
)

// StripeGateway implements Gateway with the Stripe API.
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

// NewStripeGateway constructs a gateway for the given secret key. A nil
// backends value uses the default Stripe endpoints.
func NewStripeGateway(secretKey string, timeout time.Duration, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends), timeout: timeout}
}

// FindCustomerByEmail returns the first customer registered with email.
func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	params.Context = ctx
	params.Single = true

	iter := g.api.Customers.List(params)
	if iter.Next() {
		c := iter.Customer()
		return &Customer{ID: c.ID, Email: c.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, stripeError(err)
	}
	return nil, shared.ErrNotFound
}

// CreateCustomer registers a new customer.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email string) (*Customer, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

// CreateCheckoutSession opens a subscription-mode hosted session with a single
// price. Payment methods are left to the dashboard's automatic selection.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	if p.Email != "" {
		params.AddMetadata(MetadataCustomerEmail, p.Email)
	}
	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// GetSubscription fetches the current subscription state.
func (g *StripeGateway) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, stripeError(err)
	}
	return subscriptionFromStripe(s), nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CanceledAt:         unixTimePtr(s.CanceledAt),
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		sub.PriceID = s.Items.Data[0].Price.ID
	}
	return sub
}

// stripeError keeps the provider message so it can be surfaced verbatim.
func stripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return &ProviderError{Code: string(stripeErr.Code), Message: stripeErr.Msg, Status: stripeErr.HTTPStatusCode, cause: err}
	}
	return err
}

// CodeResourceMissing is the provider code for an object that no longer exists.
const CodeResourceMissing = "resource_missing"

// IsResourceMissing reports whether err is a provider rejection for a missing
// object, such as a deleted customer.
func IsResourceMissing(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.Code == CodeResourceMissing
}

// ProviderError is a payment provider rejection.
type ProviderError struct {
	Code    string
	Message string
	Status  int
	cause   error
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.cause }

var _ Gateway = (*StripeGateway)(nil)
