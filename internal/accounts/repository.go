package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tricktime/tricktime/internal/shared"
)

// Repository defines persistence operations for profiles and subscriptions.
type Repository interface {
	FindProfileByEmail(ctx context.Context, email string) (*Profile, error)
	// EnsureProfile inserts a profile or refreshes email/active on an existing
	// one without touching its name.
	EnsureProfile(ctx context.Context, profile Profile) error
	// UpsertProfile inserts or fully overwrites the profile for profile.UserID.
	UpsertProfile(ctx context.Context, profile Profile) error
	UpsertSubscription(ctx context.Context, sub Subscription) error
	// UpdateSubscriptionState returns the number of rows affected; zero means
	// no subscription with that external id is known yet.
	UpdateSubscriptionState(ctx context.Context, state SubscriptionState) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// FindProfileByEmail fetches a profile by its normalized email.
func (r *PGRepository) FindProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	const query = `
		SELECT user_id::text, nome, COALESCE(email, ''), active, created_at, updated_at
		FROM profiles
		WHERE lower(email) = $1
		ORDER BY created_at
		LIMIT 1`
	var p Profile
	err := r.pool.QueryRow(ctx, query, shared.NormalizeEmail(email)).Scan(
		&p.UserID, &p.Name, &p.Email, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("accounts: find profile: %w", err)
	}
	return &p, nil
}

// EnsureProfile inserts a profile keeping any name already on record.
func (r *PGRepository) EnsureProfile(ctx context.Context, profile Profile) error {
	const query = `
		INSERT INTO profiles (user_id, nome, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.pool.Exec(ctx, query, profile.UserID, profile.Name, profile.Email, profile.Active, r.now()); err != nil {
		return fmt.Errorf("accounts: ensure profile: %w", err)
	}
	return nil
}

// UpsertProfile inserts or overwrites a profile keyed by user id.
func (r *PGRepository) UpsertProfile(ctx context.Context, profile Profile) error {
	const query = `
		INSERT INTO profiles (user_id, nome, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET nome = EXCLUDED.nome,
			email = EXCLUDED.email,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.pool.Exec(ctx, query, profile.UserID, profile.Name, profile.Email, profile.Active, r.now()); err != nil {
		return fmt.Errorf("accounts: upsert profile: %w", err)
	}
	return nil
}

// UpsertSubscription writes a subscription keyed by its external id.
func (r *PGRepository) UpsertSubscription(ctx context.Context, sub Subscription) error {
	const query = `
		INSERT INTO subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id, status, price_id,
			current_period_start, current_period_end, canceled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			status = EXCLUDED.status,
			price_id = EXCLUDED.price_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		sub.UserID,
		sub.CustomerID,
		sub.SubscriptionID,
		sub.Status,
		sub.PriceID,
		timestamptz(sub.CurrentPeriodStart),
		timestamptz(sub.CurrentPeriodEnd),
		nullableTimestamptz(sub.CanceledAt),
		r.now(),
	)
	if err != nil {
		return fmt.Errorf("accounts: upsert subscription: %w", err)
	}
	return nil
}

// UpdateSubscriptionState refreshes lifecycle fields by external id.
func (r *PGRepository) UpdateSubscriptionState(ctx context.Context, state SubscriptionState) (int64, error) {
	const query = `
		UPDATE subscriptions
		SET status = $2,
			current_period_start = $3,
			current_period_end = $4,
			canceled_at = $5,
			updated_at = $6
		WHERE stripe_subscription_id = $1`
	tag, err := r.pool.Exec(ctx, query,
		state.SubscriptionID,
		state.Status,
		timestamptz(state.CurrentPeriodStart),
		timestamptz(state.CurrentPeriodEnd),
		nullableTimestamptz(state.CanceledAt),
		r.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("accounts: update subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: !t.IsZero()}
}

func nullableTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return timestamptz(*t)
}

var _ Repository = (*PGRepository)(nil)
