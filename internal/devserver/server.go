// Package devserver is a fake of the dashboard API for local development and
// end-to-end tests. It serves the SSO login-URL endpoint, password login and
// registration, and the chunked insight stream, each with switchable failure
// modes.
package devserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/h0rv/finsight/internal/domain"
)

// SSOMode selects how the login-URL endpoint behaves.
type SSOMode string

const (
	SSOAvailable SSOMode = "available" // returns an authorization URL
	SSOMissing   SSOMode = "missing"   // 200 without authUrl
	SSOSlow      SSOMode = "slow"      // answers after SSODelay
	SSOError     SSOMode = "error"     // 502 with a message body
)

// InsightMode selects how the insight stream behaves.
type InsightMode string

const (
	InsightNormal        InsightMode = "normal"
	InsightSplitFrames   InsightMode = "split"    // every frame written in two flushes
	InsightProducerError InsightMode = "error"    // error frame after the first fragment
	InsightQuota         InsightMode = "quota"    // 429 {"message":"quota exceeded"}
	InsightLateContent   InsightMode = "late"     // content frame after done
	InsightTruncated     InsightMode = "truncate" // connection closed mid-frame
)

// Options configures a Server. Zero values fall back to DefaultOptions.
type Options struct {
	SSOMode     SSOMode
	SSODelay    time.Duration
	AuthURL     string // defaults to this server's /sso/authorize page
	InsightMode InsightMode
	ChunkDelay  time.Duration
	Secret      []byte
	TokenTTL    time.Duration
	Users       map[string]string // username -> password
	Documents   map[domain.InsightKind][]string
	Logger      *slog.Logger
}

// DefaultOptions returns a server with SSO available, a seeded admin/admin
// account and the built-in documents.
func DefaultOptions() Options {
	return Options{
		SSOMode:     SSOAvailable,
		SSODelay:    8 * time.Second,
		InsightMode: InsightNormal,
		ChunkDelay:  40 * time.Millisecond,
		Secret:      []byte("finsight-dev-secret"),
		TokenTTL:    12 * time.Hour,
		Users:       map[string]string{"admin": "admin"},
		Documents:   DefaultDocuments(),
	}
}

// Server is the fake dashboard backend.
type Server struct {
	opts   Options
	logger *slog.Logger
	tokens *tokenIssuer

	mu    sync.RWMutex
	users map[string]string
}

// New creates a Server.
func New(opts Options) *Server {
	defaults := DefaultOptions()
	if opts.SSOMode == "" {
		opts.SSOMode = defaults.SSOMode
	}
	if opts.SSODelay == 0 {
		opts.SSODelay = defaults.SSODelay
	}
	if opts.InsightMode == "" {
		opts.InsightMode = defaults.InsightMode
	}
	if len(opts.Secret) == 0 {
		opts.Secret = defaults.Secret
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = defaults.TokenTTL
	}
	if opts.Users == nil {
		opts.Users = defaults.Users
	}
	if opts.Documents == nil {
		opts.Documents = defaults.Documents
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	users := make(map[string]string, len(opts.Users))
	for name, password := range opts.Users {
		users[name] = password
	}

	return &Server{
		opts:   opts,
		logger: logger,
		tokens: newTokenIssuer(opts.Secret, opts.TokenTTL),
		users:  users,
	}
}

// Handler returns the gin engine serving the API.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/sso/authorize", s.authorizePage)

	api := r.Group("/api")
	api.GET("/auth/sso/login-url", s.ssoLoginURL)
	api.POST("/auth/login", s.login)
	api.POST("/auth/register", s.register)
	api.POST("/insights/generate", s.requireAuth(), s.generateInsight)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
