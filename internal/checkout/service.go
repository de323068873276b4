// Package checkout opens hosted payment sessions for prospective subscribers.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tricktime/tricktime/internal/billing"
	"github.com/tricktime/tricktime/internal/shared"
)

// DefaultOrigin is used when neither the request nor configuration names one.
const DefaultOrigin = "http://localhost:5173"

const defaultLookupTimeout = 10 * time.Second

// Config holds the settings read on every request so that a missing value is
// reported to the caller rather than failing startup.
type Config struct {
	SecretKey   string
	PriceID     string
	FrontendURL string
	// LookupTimeout bounds a shared customer lookup. Zero means 10s.
	LookupTimeout time.Duration
}

// Request asks for a hosted checkout session.
type Request struct {
	Email  string
	Origin string
}

// Service creates checkout sessions.
type Service struct {
	cfg     Config
	gateway billing.Gateway
	cache   CustomerCache
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs the checkout service. cache may be nil.
func NewService(cfg Config, gateway billing.Gateway, cache CustomerCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, gateway: gateway, cache: cache, logger: logger}
}

// CreateSession resolves the billing customer for req.Email and opens a new
// subscription session. Every call yields a fresh session.
func (s *Service) CreateSession(ctx context.Context, req Request) (*billing.Session, error) {
	email := shared.NormalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if s.cfg.SecretKey == "" || s.gateway == nil {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY", shared.ErrConfigMissing)
	}
	if s.cfg.PriceID == "" {
		return nil, fmt.Errorf("%w: PRICE_ID", shared.ErrConfigMissing)
	}

	customerID, err := s.resolveCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	origin := s.origin(req.Origin)
	params := billing.SessionParams{
		CustomerID: customerID,
		PriceID:    s.cfg.PriceID,
		Email:      email,
		SuccessURL: origin + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  origin + "/",
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if billing.IsResourceMissing(err) {
		// The remembered customer was deleted upstream: forget it and retry once.
		s.logger.Warn("cached customer missing, resolving again", slog.String("customer_id", customerID))
		s.forgetCustomer(ctx, email)
		params.CustomerID, err = s.resolveCustomer(ctx, email)
		if err != nil {
			return nil, err
		}
		customerID = params.CustomerID
		session, err = s.gateway.CreateCheckoutSession(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("checkout session created", slog.String("session_id", session.ID), slog.String("customer_id", customerID))
	return session, nil
}

// resolveCustomer finds or creates the billing customer. Concurrent requests
// for the same email share one lookup, which outlives any single caller's
// cancellation and is bounded by LookupTimeout instead.
func (s *Service) resolveCustomer(ctx context.Context, email string) (string, error) {
	ch := s.group.DoChan(email, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lookupTimeout())
		defer cancel()
		return s.findOrCreateCustomer(lookupCtx, email)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Service) findOrCreateCustomer(ctx context.Context, email string) (string, error) {
	if s.cache != nil {
		id, ok, err := s.cache.Get(ctx, email)
		if err != nil {
			s.logger.Warn("customer cache get", slog.Any("error", err))
		} else if ok {
			return id, nil
		}
	}

	customer, err := s.gateway.FindCustomerByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Info("found existing customer", slog.String("customer_id", customer.ID))
	case errors.Is(err, shared.ErrNotFound):
		customer, err = s.gateway.CreateCustomer(ctx, email)
		if err != nil {
			return "", err
		}
		s.logger.Info("created customer", slog.String("customer_id", customer.ID))
	default:
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, email, customer.ID); err != nil {
			s.logger.Warn("customer cache set", slog.Any("error", err))
		}
	}
	return customer.ID, nil
}

func (s *Service) forgetCustomer(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, email); err != nil {
		s.logger.Warn("customer cache delete", slog.Any("error", err))
	}
}

func (s *Service) lookupTimeout() time.Duration {
	if s.cfg.LookupTimeout > 0 {
		return s.cfg.LookupTimeout
	}
	return defaultLookupTimeout
}

func (s *Service) origin(requested string) string {
	for _, candidate := range []string{requested, s.cfg.FrontendURL, DefaultOrigin} {
		if c := strings.TrimRight(strings.TrimSpace(candidate), "/"); c != "" {
			return c
		}
	}
	return DefaultOrigin
}
