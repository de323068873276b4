package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/tricktime/tricktime/internal/shared"
)

// MemoryRepository is an in-process Repository with the same keying rules as
// the postgres tables (user_id for profiles, external id for subscriptions).
type MemoryRepository struct {
	mu            sync.Mutex
	profiles      map[string]Profile
	subscriptions map[string]Subscription
	now           func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:      make(map[string]Profile),
		subscriptions: make(map[string]Subscription),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// FindProfileByEmail implements Repository.
func (m *MemoryRepository) FindProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if shared.SameEmail(p.Email, email) {
			found := p
			return &found, nil
		}
	}
	return nil, shared.ErrNotFound
}

// EnsureProfile implements Repository.
func (m *MemoryRepository) EnsureProfile(ctx context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.profiles[profile.UserID]; ok {
		existing.Email = profile.Email
		existing.Active = profile.Active
		existing.UpdatedAt = now
		m.profiles[profile.UserID] = existing
		return nil
	}
	profile.CreatedAt, profile.UpdatedAt = now, now
	m.profiles[profile.UserID] = profile
	return nil
}

// UpsertProfile implements Repository.
func (m *MemoryRepository) UpsertProfile(ctx context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	profile.CreatedAt = now
	if existing, ok := m.profiles[profile.UserID]; ok {
		profile.CreatedAt = existing.CreatedAt
	}
	profile.UpdatedAt = now
	m.profiles[profile.UserID] = profile
	return nil
}

// UpsertSubscription implements Repository.
func (m *MemoryRepository) UpsertSubscription(ctx context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.UpdatedAt = m.now()
	m.subscriptions[sub.SubscriptionID] = sub
	return nil
}

// UpdateSubscriptionState implements Repository.
func (m *MemoryRepository) UpdateSubscriptionState(ctx context.Context, state SubscriptionState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[state.SubscriptionID]
	if !ok {
		return 0, nil
	}
	sub.Status = state.Status
	sub.CurrentPeriodStart = state.CurrentPeriodStart
	sub.CurrentPeriodEnd = state.CurrentPeriodEnd
	sub.CanceledAt = state.CanceledAt
	sub.UpdatedAt = m.now()
	m.subscriptions[state.SubscriptionID] = sub
	return 1, nil
}

// Profiles returns a snapshot of stored profiles.
func (m *MemoryRepository) Profiles() []Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out
}

// Subscriptions returns a snapshot of stored subscriptions.
func (m *MemoryRepository) Subscriptions() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out = append(out, s)
	}
	return out
}

var _ Repository = (*MemoryRepository)(nil)
