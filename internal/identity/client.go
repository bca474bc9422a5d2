// Package identity wraps the external identity provider's admin API. Only
// the operations the console actually needs are implemented: service-token
// acquisition, exact user lookup, credential reset, and required-actions
// email delivery.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stewardhq/steward/internal/shared"
)

// Config carries the provider connection settings.
type Config struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// User is the subset of the provider's user representation the console
// consumes. IDs are UUID strings minted by the provider.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
}

// Client talks to the identity provider's admin API using a cached
// client-credentials token.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *TokenSource
}

// NewClient constructs a client. The Redis cache may be nil, in which case
// every call fetches a fresh token (singleflight still dedupes concurrent
// fetches).
func NewClient(cfg Config, cache *redis.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	c.tokens = NewTokenSource(cache, "steward:idp:admin_token", c.fetchToken)
	return c
}

// fetchToken performs the client_credentials grant and returns the access
// token with its cacheable lifetime.
func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: token request: %v", shared.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("%w: token endpoint returned status %d", shared.ErrUpstream, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("%w: decode token response: %v", shared.ErrUpstream, err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: token endpoint returned an empty token", shared.ErrUpstream)
	}

	// Cache slightly shorter than the provider's TTL so a cached token is
	// never presented after expiry.
	ttl := time.Duration(payload.ExpiresIn)*time.Second - 30*time.Second
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return payload.AccessToken, ttl, nil
}

// UsersByUsername returns users whose username matches exactly.
func (c *Client) UsersByUsername(ctx context.Context, username string) ([]User, error) {
	query := url.Values{"username": {username}, "exact": {"true"}}
	return c.searchUsers(ctx, query)
}

// UsersByEmail returns users whose email matches exactly.
func (c *Client) UsersByEmail(ctx context.Context, email string) ([]User, error) {
	query := url.Values{"email": {email}, "exact": {"true"}}
	return c.searchUsers(ctx, query)
}

func (c *Client) searchUsers(ctx context.Context, query url.Values) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/users?"+query.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ResetPassword replaces the user's credential. Temporary credentials force
// a change at next login.
func (c *Client) ResetPassword(ctx context.Context, userID, password string, temporary bool) error {
	body := map[string]any{
		"type":      "password",
		"value":     password,
		"temporary": temporary,
	}
	return c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/reset-password", body, nil)
}

// SendActionsEmail asks the provider to email the user a link executing the
// given required actions (e.g. UPDATE_PASSWORD).
func (c *Client) SendActionsEmail(ctx context.Context, userID string, actions []string) error {
	return c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/execute-actions-email", actions, nil)
}

// doJSON issues an authorized admin-API request. A 404 maps to ErrNotFound;
// any other failure surfaces as ErrUpstream.
func (c *Client) doJSON(ctx context.Context, method, path string, body, target any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Realm, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: identity provider request: %v", shared.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: identity provider user", shared.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: identity provider returned status %d", shared.ErrUpstream, resp.StatusCode)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("%w: decode identity provider response: %v", shared.ErrUpstream, err)
		}
	}
	return nil
}
