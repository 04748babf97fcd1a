// Package authclient talks to the MiiCoin backend's session routes.
//
// The backend keeps sessions in a cookie. Build the client on the same
// [poller.Fetcher] (and so the same cookie jar) as the synchronizer so polls
// made after [Client.Login] are authenticated. The client only returns
// results; it never decides where the user goes next.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/miicoin/signalsync/internal/poller"
	"github.com/miicoin/signalsync/signals"
)

const defaultTimeout = 10 * time.Second

// Failure messages used when the backend gives none.
const (
	msgLogin         = "login failed"
	msgRegister      = "registration failed"
	msgLogout        = "logout failed"
	msgProfile       = "profile request failed"
	msgProfileUpdate = "profile update failed"
)

// User is the account summary returned by a login.
type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Registration is the body of a sign-up request.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ProfileUpdate changes the fields that are non-nil.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// envelope is the common shape of every auth response.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	User    json.RawMessage `json:"user"`
	UserID  int             `json:"user_id"`
}

// Client issues auth requests against one backend.
type Client struct {
	baseURL string
	fetcher poller.Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a client for the backend at baseURL. logger may be nil.
func New(baseURL string, fetcher poller.Fetcher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// Login starts a session. The session cookie lands in the fetcher's jar.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, errors.New("email and password are required")
	}

	body := map[string]string{"email": email, "password": password}
	env, err := c.do(ctx, http.MethodPost, "/auth/login", body, msgLogin)
	if err != nil {
		return User{}, err
	}

	var user User
	if len(env.User) > 0 {
		if err := json.Unmarshal(env.User, &user); err != nil {
			return User{}, &poller.ParseError{Err: err}
		}
	}
	c.logger.Info("logged in", "email", user.Email)
	return user, nil
}

// Register creates an account and returns its ID. It does not log in.
func (c *Client) Register(ctx context.Context, r Registration) (int, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/register", r, msgRegister)
	if err != nil {
		return 0, err
	}
	return env.UserID, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/auth/logout", nil, msgLogout)
	return err
}

// Profile returns the logged-in user's profile.
func (c *Client) Profile(ctx context.Context) (signals.Profile, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/profile", nil, msgProfile)
	if err != nil {
		return signals.Profile{}, err
	}
	if len(env.User) == 0 {
		return signals.Profile{}, &poller.ParseError{Err: errors.New("response has no user")}
	}

	var p signals.Profile
	if err := json.Unmarshal(env.User, &p); err != nil {
		return signals.Profile{}, &poller.ParseError{Err: err}
	}
	return p, nil
}

// UpdateProfile changes the logged-in user's name or password and returns
// the server's confirmation message.
func (c *Client) UpdateProfile(ctx context.Context, u ProfileUpdate) (string, error) {
	if u.Name == nil && u.Password == nil {
		return "", errors.New("nothing to update")
	}
	env, err := c.do(ctx, http.MethodPut, "/auth/profile/update", u, msgProfileUpdate)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// do sends one request and decodes the envelope. Non-2xx responses become
// *poller.StatusError carrying the server's message, or fallback.
func (c *Client) do(ctx context.Context, method, path string, body any, fallback string) (envelope, error) {
	req := poller.Request{
		Method:  method,
		URL:     c.baseURL + path,
		Timeout: c.timeout,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("encode request: %w", err)
		}
		req.Body = data
	}

	resp := c.fetcher.Fetch(ctx, req)
	if resp.Error != nil {
		c.logger.Warn("auth request failed", "request", req.String(), "error", resp.Error)
		return envelope{}, resp.Error
	}

	var env envelope
	decodeErr := json.Unmarshal(resp.Body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		c.logger.Warn("auth request rejected", "request", req.String(), "status_code", resp.StatusCode, "message", msg)
		return envelope{}, &poller.StatusError{Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return envelope{}, &poller.ParseError{Err: decodeErr}
	}
	return env, nil
}
