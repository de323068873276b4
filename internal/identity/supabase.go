package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tricktime/tricktime/internal/shared"
)

const (
	defaultPerPage  = 100
	defaultMaxPages = 10
)

// SupabaseStore implements Store over the Supabase Auth (GoTrue) admin API.
// The admin API has no email-keyed read, so FindByEmail pages through users.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	perPage    int
	maxPages   int
}

// SupabaseOption customises a SupabaseStore.
type SupabaseOption func(*SupabaseStore)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) SupabaseOption {
	return func(s *SupabaseStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithScanLimits bounds the user listing scan used by FindByEmail.
func WithScanLimits(perPage, maxPages int) SupabaseOption {
	return func(s *SupabaseStore) {
		if perPage > 0 {
			s.perPage = perPage
		}
		if maxPages > 0 {
			s.maxPages = maxPages
		}
	}
}

// NewSupabaseStore constructs a client for the project at baseURL.
func NewSupabaseStore(baseURL, serviceKey string, timeout time.Duration, opts ...SupabaseOption) *SupabaseStore {
	s := &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
		perPage:    defaultPerPage,
		maxPages:   defaultMaxPages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type supabaseUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u supabaseUser) identity() *Identity {
	return &Identity{
		ID:        u.ID,
		Email:     u.Email,
		Confirmed: u.EmailConfirmedAt != nil,
		CreatedAt: u.CreatedAt,
	}
}

type supabaseError struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Create registers a new user through the admin API.
func (s *SupabaseStore) Create(ctx context.Context, params CreateParams) (*Identity, error) {
	body := map[string]any{
		"email":         params.Email,
		"password":      params.Password,
		"email_confirm": params.Confirmed,
	}
	if len(params.Metadata) > 0 {
		body["user_metadata"] = params.Metadata
	}
	var user supabaseUser
	if err := s.do(ctx, http.MethodPost, "/auth/v1/admin/users", nil, body, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "identity: create returned no user id"}
	}
	return user.identity(), nil
}

// FindByEmail scans user pages for a case-insensitive email match.
func (s *SupabaseStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	target := shared.NormalizeEmail(email)
	if target == "" {
		return nil, shared.ErrNotFound
	}
	for page := 1; page <= s.maxPages; page++ {
		users, err := s.listUsers(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("identity: list users page %d: %w", page, err)
		}
		for _, u := range users {
			if shared.NormalizeEmail(u.Email) == target {
				return u.identity(), nil
			}
		}
		if len(users) < s.perPage {
			break
		}
	}
	return nil, shared.ErrNotFound
}

// UpdatePassword replaces the credential of an existing user.
func (s *SupabaseStore) UpdatePassword(ctx context.Context, id, password string) error {
	return s.do(ctx, http.MethodPut, "/auth/v1/admin/users/"+url.PathEscape(id), nil, map[string]any{"password": password}, nil)
}

func (s *SupabaseStore) listUsers(ctx context.Context, page int) ([]supabaseUser, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(s.perPage))
	var resp struct {
		Users []supabaseUser `json:"users"`
	}
	if err := s.do(ctx, http.MethodGet, "/auth/v1/admin/users", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (s *SupabaseStore) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return decodeSupabaseError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func decodeSupabaseError(status int, data []byte) error {
	var payload supabaseError
	_ = json.Unmarshal(data, &payload)
	apiErr := &APIError{Status: status, Code: payload.ErrorCode}
	if apiErr.Code == "" && len(payload.Code) > 0 {
		var code string
		if json.Unmarshal(payload.Code, &code) == nil {
			apiErr.Code = code
		}
	}
	for _, msg := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if isAlreadyExists(apiErr) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, apiErr.Error())
	}
	return apiErr
}

func isAlreadyExists(e *APIError) bool {
	switch e.Code {
	case "email_exists", "user_already_exists":
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "already been registered") || strings.Contains(msg, "already registered")
}

var _ Store = (*SupabaseStore)(nil)
