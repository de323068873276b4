package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tricktime/tricktime/internal/shared"
)

func TestEnsureProfileKeepsName(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.UpsertProfile(ctx, Profile{UserID: "u1", Name: "Ana Souza", Email: "ana@x.com", Active: true}))
	require.NoError(t, repo.EnsureProfile(ctx, Profile{UserID: "u1", Name: "ana", Email: "ana@x.com", Active: true}))

	profiles := repo.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "Ana Souza", profiles[0].Name)
}

func TestFindProfileByEmailNormalizes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.EnsureProfile(ctx, Profile{UserID: "u1", Name: "c", Email: "c@d.com", Active: true}))

	p, err := repo.FindProfileByEmail(ctx, " C@D.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)

	_, err = repo.FindProfileByEmail(ctx, "missing@d.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateSubscriptionStateUnknownIsNoop(t *testing.T) {
	repo := NewMemoryRepository()
	n, err := repo.UpdateSubscriptionState(context.Background(), SubscriptionState{SubscriptionID: "sub_missing", Status: "canceled"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.Subscriptions())
}

func TestUpsertSubscriptionKeyedByExternalID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	start := time.Unix(1_700_000_000, 0).UTC()

	sub := Subscription{UserID: "u1", CustomerID: "cus_1", SubscriptionID: "sub_1", Status: "incomplete", PriceID: "price_1", CurrentPeriodStart: start, CurrentPeriodEnd: start.AddDate(0, 1, 0)}
	require.NoError(t, repo.UpsertSubscription(ctx, sub))
	sub.Status = "active"
	require.NoError(t, repo.UpsertSubscription(ctx, sub))

	subs := repo.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "active", subs[0].Status)
}
