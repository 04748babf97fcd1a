package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"time"

	"github.com/miicoin/signalsync"
	"github.com/miicoin/signalsync/config"
	"github.com/miicoin/signalsync/internal/authclient"
	"github.com/miicoin/signalsync/internal/poller"
)

const logoutTimeout = 5 * time.Second

// session is the HTTP state shared by polling and auth: one transport, one
// cookie jar.
type session struct {
	fetcher *poller.Client
	auth    *authclient.Client
	logger  *slog.Logger
}

// openSession builds the shared fetcher and logs in when cfg has credentials.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &session{
		fetcher: signalsync.NewHTTPFetcher(jar),
		logger:  logger,
	}
	if cfg.Auth == nil {
		return s, nil
	}

	s.auth = authclient.New(cfg.BaseURL, s.fetcher, logger)
	if _, err := s.auth.Login(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
		s.fetcher.Close()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return s, nil
}

// close logs out (when logged in) and releases idle connections.
func (s *session) close() {
	if s.auth != nil {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn("logout failed", "error", err)
		}
		cancel()
	}
	s.fetcher.Close()
}
