package gocardless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

type newTokenRequest struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

type refreshTokenRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int    `json:"refresh_expires"`
}

// tokenSource obtains access tokens with the secret id/key pair and renews
// them with the refresh token while it is valid. It is wrapped in an
// oauth2.ReuseTokenSource, so Token is only called once the cached access
// token expires.
type tokenSource struct {
	c *Client

	mu            sync.Mutex
	refresh       string
	refreshExpiry time.Time
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	now := s.c.now()

	if s.refresh != "" && now.Before(s.refreshExpiry) {
		var resp tokenResponse
		err := s.c.do(ctx, s.c.raw, "POST", "token/refresh/", nil, refreshTokenRequest{Refresh: s.refresh}, &resp)
		if err == nil {
			return s.token(now, resp), nil
		}
		s.c.logger.Warn("refreshing access token failed, requesting a new one", "error", err)
	}

	var resp tokenResponse
	req := newTokenRequest{SecretID: s.c.cfg.SecretID, SecretKey: s.c.cfg.SecretKey}
	if err := s.c.do(ctx, s.c.raw, "POST", "token/new/", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("requesting access token: %w", err)
	}
	s.refresh = resp.Refresh
	s.refreshExpiry = now.Add(time.Duration(resp.RefreshExpires) * time.Second)
	s.c.logger.Debug("obtained access token", "expires_in", resp.AccessExpires)
	return s.token(now, resp), nil
}

func (s *tokenSource) token(now time.Time, resp tokenResponse) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: resp.Access,
		TokenType:   "Bearer",
		Expiry:      now.Add(time.Duration(resp.AccessExpires) * time.Second),
	}
}
