package onboarding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tricktime/tricktime/internal/accounts"
	"github.com/tricktime/tricktime/internal/identity"
)

func postAccount(t *testing.T, svc *Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(svc, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/create-account", strings.NewReader(body)))
	return rec
}

func TestHandlerUpdatesExistingAccount(t *testing.T) {
	svc, ids, repo := newService()
	existing, err := ids.Create(context.Background(), identity.CreateParams{Email: "a@b.com", Password: "temporary"})
	require.NoError(t, err)
	require.NoError(t, repo.EnsureProfile(context.Background(), accounts.Profile{UserID: existing.ID, Name: "a", Email: "a@b.com", Active: true}))

	rec := postAccount(t, svc, `{"email":"a@b.com","password":"s3cret!","sessionId":"cs_1","action":"create"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body createAccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, createAccountResponse{Success: true, Message: MessageUpdated, UserID: existing.ID}, body)
	assert.Equal(t, 1, ids.Count())
	assert.Len(t, repo.Profiles(), 1)
}

func TestHandlerValidation(t *testing.T) {
	svc, _, _ := newService()

	rec := postAccount(t, svc, `{"email":"a@b.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"password must be at least 6 characters"}`, rec.Body.String())

	rec = postAccount(t, svc, `{"password":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postAccount(t, svc, `{"email":"a@b.com","password":"123456","action":"delete"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"action must be one of: create"}`, rec.Body.String())
}

func TestHandlerSurfacesCapabilityError(t *testing.T) {
	svc, ids, _ := newService()
	ids.CreateErr = &identity.APIError{Status: 500, Message: "Database error creating new user"}

	rec := postAccount(t, svc, `{"email":"a@b.com","password":"123456"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Database error creating new user"}`, rec.Body.String())
}
