package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/tricktime/tricktime/internal/shared"
)

// PGStore implements Store on the auth_identities table. Email uniqueness is
// enforced by the email_key unique constraint.
type PGStore struct {
	pool *pgxpool.Pool
	cost int
	now  func() time.Time
}

// NewPGStore constructs a postgres-backed identity store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, cost: bcrypt.DefaultCost, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new identity with a bcrypt password hash.
func (s *PGStore) Create(ctx context.Context, params CreateParams) (*Identity, error) {
	key := shared.NormalizeEmail(params.Email)
	if key == "" {
		return nil, fmt.Errorf("identity: email required: %w", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("identity: encode metadata: %w", err)
	}
	if params.Metadata == nil {
		metadata = []byte("{}")
	}

	now := s.now()
	ident := &Identity{ID: uuid.NewString(), Email: params.Email, Confirmed: params.Confirmed, CreatedAt: now}
	confirmedAt := pgtype.Timestamptz{Time: now, Valid: params.Confirmed}

	const query = `
		INSERT INTO auth_identities (id, email, email_key, password_hash, confirmed_at, user_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	if _, err := s.pool.Exec(ctx, query, ident.ID, ident.Email, key, string(hash), confirmedAt, metadata, now); err != nil {
		if shared.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("identity: insert: %w", err)
	}
	return ident, nil
}

// FindByEmail performs an indexed lookup on the normalized email.
func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	const query = `
		SELECT id::text, email, confirmed_at, created_at
		FROM auth_identities
		WHERE email_key = $1`
	var (
		ident       Identity
		confirmedAt pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, query, shared.NormalizeEmail(email)).Scan(&ident.ID, &ident.Email, &confirmedAt, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("identity: find by email: %w", err)
	}
	ident.Confirmed = confirmedAt.Valid
	return &ident, nil
}

// UpdatePassword rehashes and stores a new password.
func (s *PGStore) UpdatePassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE auth_identities SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, string(hash), s.now())
	if err != nil {
		return fmt.Errorf("identity: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Store = (*PGStore)(nil)
