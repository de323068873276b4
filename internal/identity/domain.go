// Package identity talks to the login-capable account store: the Supabase Auth
// admin API or the self-hosted auth_identities table.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyExists indicates an identity with the same email is already registered.
var ErrAlreadyExists = errors.New("identity already exists")

// Identity is a login-capable account.
type Identity struct {
	ID        string
	Email     string
	Confirmed bool
	CreatedAt time.Time
}

// CreateParams describes a new identity.
type CreateParams struct {
	Email    string
	Password string
	// Confirmed marks the email as verified at creation time.
	Confirmed bool
	Metadata  map[string]any
}

// Store is the Identity Capability used by the provisioning flow.
type Store interface {
	Create(ctx context.Context, params CreateParams) (*Identity, error)
	// FindByEmail returns shared.ErrNotFound when no identity matches.
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdatePassword(ctx context.Context, id, password string) error
}

// APIError is returned when the identity capability rejects a request.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: request failed with status %d", e.Status)
	}
	return e.Message
}
