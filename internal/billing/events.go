package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

// Event types handled by the reconciler.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

var (
	// ErrSignature indicates the event signature could not be verified.
	ErrSignature = errors.New("billing: webhook signature verification failed")
	// ErrMalformedEvent indicates the event body could not be decoded.
	ErrMalformedEvent = errors.New("billing: malformed webhook event")
)

// Event is one of CheckoutSessionCompleted, SubscriptionChanged or
// UnhandledEvent.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

// EventMeta carries the envelope fields shared by every event.
type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

// EventID returns the provider event id.
func (m EventMeta) EventID() string { return m.ID }

// EventType returns the provider event type.
func (m EventMeta) EventType() string { return m.Type }

func (EventMeta) isEvent() {}

// CheckoutSessionCompleted reports a finished hosted checkout.
type CheckoutSessionCompleted struct {
	EventMeta
	SessionID      string
	Mode           string
	CustomerID     string
	SubscriptionID string
	CustomerEmail  string
	Metadata       map[string]string
}

// PurchaserEmail returns the email from the customer details, falling back to
// the metadata written at session creation. The value is not normalized.
func (e CheckoutSessionCompleted) PurchaserEmail() string {
	if strings.TrimSpace(e.CustomerEmail) != "" {
		return e.CustomerEmail
	}
	return e.Metadata[MetadataCustomerEmail]
}

// SubscriptionChanged reports a subscription update or deletion.
type SubscriptionChanged struct {
	EventMeta
	Subscription Subscription
}

// Deleted reports whether the subscription was removed.
func (e SubscriptionChanged) Deleted() bool { return e.Type == EventSubscriptionDeleted }

// UnhandledEvent is any event type the reconciler does not act upon.
type UnhandledEvent struct {
	EventMeta
}

// VerifySignature checks the Stripe-Signature header against secret.
func VerifySignature(payload []byte, header, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: signing secret not configured", ErrSignature)
	}
	if err := webhook.ValidatePayload(payload, header, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// expandableID accepts either a bare id string or an expanded object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Customer        expandableID      `json:"customer"`
	Subscription    expandableID      `json:"subscription"`
	CustomerEmail   string            `json:"customer_email"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type subscriptionPeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type subscriptionObject struct {
	ID       string       `json:"id"`
	Customer expandableID `json:"customer"`
	Status   string       `json:"status"`
	subscriptionPeriod
	CanceledAt *int64 `json:"canceled_at"`
	Items      struct {
		Data []struct {
			subscriptionPeriod
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (o subscriptionObject) subscription() Subscription {
	sub := Subscription{
		ID:                 o.ID,
		CustomerID:         string(o.Customer),
		Status:             o.Status,
		CurrentPeriodStart: unixTime(o.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(o.CurrentPeriodEnd),
	}
	if o.CanceledAt != nil {
		sub.CanceledAt = unixTimePtr(*o.CanceledAt)
	}
	if len(o.Items.Data) > 0 {
		item := o.Items.Data[0]
		sub.PriceID = item.Price.ID
		// Newer API versions report the billing period per item.
		if sub.CurrentPeriodStart.IsZero() {
			sub.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		}
		if sub.CurrentPeriodEnd.IsZero() {
			sub.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return sub
}

// ParseEvent decodes a webhook body into the matching Event variant.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	meta := EventMeta{ID: env.ID, Type: env.Type, Created: unixTime(env.Created)}

	switch env.Type {
	case EventCheckoutSessionCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
		}
		evt := CheckoutSessionCompleted{
			EventMeta:      meta,
			SessionID:      obj.ID,
			Mode:           obj.Mode,
			CustomerID:     string(obj.Customer),
			SubscriptionID: string(obj.Subscription),
			CustomerEmail:  obj.CustomerEmail,
			Metadata:       obj.Metadata,
		}
		if obj.CustomerDetails != nil && obj.CustomerDetails.Email != "" {
			evt.CustomerEmail = obj.CustomerDetails.Email
		}
		return evt, nil
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
		}
		return SubscriptionChanged{EventMeta: meta, Subscription: obj.subscription()}, nil
	default:
		return UnhandledEvent{EventMeta: meta}, nil
	}
}
