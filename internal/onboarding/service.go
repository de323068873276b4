// Package onboarding lets a new subscriber set the permanent password for the
// account provisioned after checkout.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tricktime/tricktime/internal/accounts"
	"github.com/tricktime/tricktime/internal/identity"
	"github.com/tricktime/tricktime/internal/shared"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 6

// Result messages distinguishing the two outcomes.
const (
	MessageUpdated = "updated existing user password"
	MessageCreated = "account created"
)

// Request finalizes an account.
type Request struct {
	Email     string
	Password  string
	Name      string
	SessionID string
}

// Result reports the finalized identity.
type Result struct {
	UserID  string
	Message string
	Created bool
}

// Service finalizes accounts against the identity capability.
type Service struct {
	identities identity.Store
	accounts   accounts.Repository
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService constructs the service. callTimeout bounds each outbound call.
func NewService(identities identity.Store, repo accounts.Repository, callTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{identities: identities, accounts: repo, timeout: callTimeout, logger: logger}
}

// Finalize sets req.Password on the identity registered for req.Email, creating
// the identity when none exists yet.
func (s *Service) Finalize(ctx context.Context, req Request) (*Result, error) {
	email := shared.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: missing email/password", shared.ErrValidation)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, MinPasswordLength)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = shared.EmailLocalPart(email)
	}
	logger := s.logger.With(slog.String("email", email))
	if req.SessionID != "" {
		logger = logger.With(slog.String("session_id", req.SessionID))
	}
	logger.Info("finalizing account")

	if userID := s.lookup(ctx, logger, email); userID != "" {
		return s.updateExisting(ctx, logger, userID, email, name, req.Password)
	}

	var metadata map[string]any
	if n := strings.TrimSpace(req.Name); n != "" {
		metadata = map[string]any{"nome": n}
	}
	var created *identity.Identity
	createErr := s.call(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.identities.Create(ctx, identity.CreateParams{
			Email:     email,
			Password:  req.Password,
			Confirmed: true,
			Metadata:  metadata,
		})
		return err
	})
	if createErr != nil {
		logger.Warn("create identity", slog.Any("error", createErr))
		// The reconciler may have created the identity since the lookup.
		if userID := s.findIdentity(ctx, logger, email); userID != "" {
			return s.updateExisting(ctx, logger, userID, email, name, req.Password)
		}
		return nil, createErr
	}
	if created == nil || created.ID == "" {
		return nil, errors.New("identity capability returned no id")
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.accounts.UpsertProfile(ctx, accounts.Profile{UserID: created.ID, Name: name, Email: email, Active: true})
	}); err != nil {
		logger.Error("insert profile", slog.String("user_id", created.ID), slog.Any("error", err))
	}
	logger.Info("account created", slog.String("user_id", created.ID))
	return &Result{UserID: created.ID, Message: MessageCreated, Created: true}, nil
}

func (s *Service) updateExisting(ctx context.Context, logger *slog.Logger, userID, email, name, password string) (*Result, error) {
	logger = logger.With(slog.String("user_id", userID))
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.identities.UpdatePassword(ctx, userID, password)
	}); err != nil {
		logger.Error("update password", slog.Any("error", err))
		return nil, err
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.accounts.UpsertProfile(ctx, accounts.Profile{UserID: userID, Name: name, Email: email, Active: true})
	}); err != nil {
		logger.Error("upsert profile", slog.Any("error", err))
	}
	logger.Info("password updated for existing user")
	return &Result{UserID: userID, Message: MessageUpdated}, nil
}

// lookup finds the identity id through the profile index, then the identity
// capability.
func (s *Service) lookup(ctx context.Context, logger *slog.Logger, email string) string {
	var profile *accounts.Profile
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		profile, err = s.accounts.FindProfileByEmail(ctx, email)
		return err
	})
	switch {
	case err == nil && profile != nil && profile.UserID != "":
		return profile.UserID
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		logger.Warn("profile lookup by email", slog.Any("error", err))
	}
	return s.findIdentity(ctx, logger, email)
}

func (s *Service) findIdentity(ctx context.Context, logger *slog.Logger, email string) string {
	var found *identity.Identity
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		found, err = s.identities.FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			logger.Warn("identity lookup by email", slog.Any("error", err))
		}
		return ""
	}
	if found == nil {
		return ""
	}
	return found.ID
}

func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}
