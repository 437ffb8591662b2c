package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/h0rv/finsight/internal/auth"
	"github.com/h0rv/finsight/internal/domain"
)

// Endpoint paths.
const (
	PathSSOLoginURL     = "/api/auth/sso/login-url"
	PathLogin           = "/api/auth/login"
	PathRegister        = "/api/auth/register"
	PathGenerateInsight = "/api/insights/generate"
)

// SSOLoginURL asks the server for an identity-provider authorization URL.
// An empty URL with a nil error means SSO is not available.
func (c *Client) SSOLoginURL(ctx context.Context) (string, error) {
	var resp struct {
		AuthURL string `json:"authUrl"`
	}
	if err := c.doJSON(ctx, http.MethodGet, PathSSOLoginURL, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get SSO login URL: %w", err)
	}
	return resp.AuthURL, nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session. The returned token is also
// installed on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	var resp struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, PathLogin, credentials{Username: username, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login failed: server returned no token")
	}

	session := &domain.Session{User: resp.User, Token: resp.Token}
	if session.User.Username == "" {
		session.User.Username = username
	}
	if claims, err := auth.ParseClaims(resp.Token); err == nil {
		session.ExpiresAt = claims.ExpiresAt
	} else {
		c.logger.Debug("session token is not a JWT", "error", err)
	}

	c.SetToken(resp.Token)
	return session, nil
}

// Register creates a new account. It does not sign the user in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	if err := c.doJSON(ctx, http.MethodPost, PathRegister, credentials{Username: username, Password: password}, nil); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

// SessionFromToken builds a session from a previously stored token.
// Returns auth.ErrTokenExpired if the token is stale.
func SessionFromToken(token string, now time.Time) (*domain.Session, error) {
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return nil, err
	}
	if err := claims.CheckFresh(now); err != nil {
		return nil, err
	}
	return &domain.Session{
		User:      domain.User{Username: claims.Subject},
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}
