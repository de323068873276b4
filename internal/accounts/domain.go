// Package accounts holds the application-side records mirrored for each
// identity: the user profile and the billing subscription.
package accounts

import "time"

// Profile is application-level user metadata, one per identity.
type Profile struct {
	UserID    string
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription mirrors the payment provider's subscription state.
type Subscription struct {
	UserID             string
	CustomerID         string
	SubscriptionID     string
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CanceledAt         *time.Time
	UpdatedAt          time.Time
}

// SubscriptionState carries the lifecycle fields refreshed by subscription
// update/delete notifications.
type SubscriptionState struct {
	SubscriptionID     string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CanceledAt         *time.Time
}
