// Package sandbox is an in-memory implementation of the finance backend's
// HTTP contract, for local development and end-to-end tests of the client.
package sandbox

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Veraticus/bankflow/internal/service"
)

// Config tunes the sandbox.
type Config struct {
	Clock        service.Clock
	Secret       []byte
	AllowOrigins []string
	// Accounts are linked for every newly registered user.
	Accounts []string
	// FailAccounts name accounts whose imports fail before importing anything.
	FailAccounts []string
	// SoftLimit is the number of imports allowed per account per UTC day.
	SoftLimit    int
	AccessTTL    time.Duration
	StepDelay    time.Duration
	BatchSize    int
	HistoryDays  int
	PasswordCost int
}

// DefaultConfig returns the settings used by the sandbox binary.
func DefaultConfig() Config {
	return Config{
		Clock:        service.SystemClock{},
		Secret:       []byte("bankflow-sandbox-secret"),
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		Accounts:     []string{"acc-checking", "acc-savings"},
		SoftLimit:    4,
		AccessTTL:    time.Hour,
		StepDelay:    250 * time.Millisecond,
		BatchSize:    5,
		HistoryDays:  90,
		PasswordCost: bcrypt.DefaultCost,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if len(c.Secret) == 0 {
		c.Secret = def.Secret
	}
	if c.SoftLimit <= 0 {
		c.SoftLimit = def.SoftLimit
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = def.AccessTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = def.HistoryDays
	}
	if c.PasswordCost == 0 {
		c.PasswordCost = def.PasswordCost
	}
}

// Server serves the backend contract under /api.
type Server struct {
	ctx    context.Context
	router *gin.Engine
	state  *state
	cancel context.CancelFunc
	fail   map[string]bool
	cfg    Config
	jobs   sync.WaitGroup
}

// New creates a sandbox server.
func New(cfg Config) *Server {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		state:  newState(),
		ctx:    ctx,
		cancel: cancel,
		fail:   make(map[string]bool, len(cfg.FailAccounts)),
	}
	for _, id := range cfg.FailAccounts {
		s.fail[id] = true
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops running import jobs and waits for them to exit.
func (s *Server) Close() {
	s.cancel()
	s.jobs.Wait()
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(s.cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": s.cfg.Clock.Now().Format(time.RFC3339)})
	})

	api := router.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/auth/register", s.register)
	api.POST("/auth/logout", s.logout)

	protected := api.Group("/")
	protected.Use(s.requireAuth())
	{
		protected.GET("/auth/verify", s.verify)

		protected.GET("/bankdata/institutions", s.institutions)
		protected.POST("/bankdata/start", s.startLink)
		protected.GET("/bankdata/accounts", s.accounts)
		protected.POST("/bankdata/import", s.startImport)
		protected.GET("/bankdata/import/progress/:jobId", s.importProgress)
		protected.POST("/bankdata/auto/sync", s.autoSync)
		protected.GET("/bankdata/debug/account-calls", s.accountCalls)

		protected.GET("/transactions", s.listTransactions)
		protected.POST("/transactions", s.createTransaction)
		protected.PUT("/transactions/:id", s.updateTransaction)
		protected.DELETE("/transactions/:id", s.deleteTransaction)
		protected.POST("/transactions/:id/apply-category", s.applyCategory)

		protected.GET("/categories", s.listCategories)
		protected.POST("/categories", s.createCategory)
		protected.DELETE("/categories/:id", s.deleteCategory)
	}

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("Sandbox request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// abort writes the backend's error shape.
func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}
