package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tricktime/tricktime/internal/shared"
)

// MemoryStore is an in-process Store that enforces email uniqueness the same
// way the hosted capability does.
type MemoryStore struct {
	mu        sync.Mutex
	byID      map[string]*Identity
	passwords map[string]string
	// CreateErr, when set, is returned by Create before any uniqueness check.
	CreateErr error
	// UpdateErr, when set, is returned by UpdatePassword.
	UpdateErr error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Identity), passwords: make(map[string]string)}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, params CreateParams) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	for _, ident := range m.byID {
		if shared.SameEmail(ident.Email, params.Email) {
			return nil, ErrAlreadyExists
		}
	}
	ident := &Identity{ID: uuid.NewString(), Email: params.Email, Confirmed: params.Confirmed, CreatedAt: time.Now().UTC()}
	m.byID[ident.ID] = ident
	m.passwords[ident.ID] = params.Password
	copied := *ident
	return &copied, nil
}

// FindByEmail implements Store.
func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.byID {
		if shared.SameEmail(ident.Email, email) {
			copied := *ident
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

// UpdatePassword implements Store.
func (m *MemoryStore) UpdatePassword(ctx context.Context, id, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.byID[id]; !ok {
		return shared.ErrNotFound
	}
	m.passwords[id] = password
	return nil
}

// Count returns the number of stored identities.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Password returns the stored credential for id.
func (m *MemoryStore) Password(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passwords[id]
}

var _ Store = (*MemoryStore)(nil)
