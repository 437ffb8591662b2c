package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/h0rv/finsight/internal/domain"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func message(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// ssoLoginURL handles GET /api/auth/sso/login-url
func (s *Server) ssoLoginURL(c *gin.Context) {
	switch s.opts.SSOMode {
	case SSOMissing:
		c.JSON(http.StatusOK, gin.H{})
		return
	case SSOError:
		message(c, http.StatusBadGateway, "identity provider unreachable")
		return
	case SSOSlow:
		select {
		case <-time.After(s.opts.SSODelay):
		case <-c.Request.Context().Done():
			return
		}
	}

	authURL := s.opts.AuthURL
	if authURL == "" {
		authURL = "http://" + c.Request.Host + "/sso/authorize?state=dev"
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

// authorizePage stands in for the identity provider's consent screen.
func (s *Server) authorizePage(c *gin.Context) {
	c.String(http.StatusOK, "finsight dev identity provider: nothing to authorize here.\n")
}

// login handles POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	s.mu.RLock()
	password, ok := s.users[req.Username]
	s.mu.RUnlock()
	if !ok || password != req.Password {
		message(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.tokens.Generate(req.Username)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		message(c, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": domain.User{
			ID:       "user-" + req.Username,
			Username: req.Username,
			Role:     "admin",
		},
	})
}

// register handles POST /api/auth/register
func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		message(c, http.StatusConflict, "Username already taken")
		return
	}
	s.users[req.Username] = req.Password
	c.JSON(http.StatusCreated, gin.H{"message": "Account created"})
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			message(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		subject, err := s.tokens.Verify(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				message(c, http.StatusUnauthorized, "Session expired")
				return
			}
			message(c, http.StatusUnauthorized, "Invalid session")
			return
		}
		c.Set("subject", subject)
		c.Next()
	}
}
