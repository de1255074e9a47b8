// Package server wires every component into a gin engine: construction
// order follows the data-flow chain in SPEC_FULL.md §2 (leaf
// dependencies first — clock, vault, adapters — then the components
// that compose them). Modeled on the teacher's server.go constructor
// shape (single New(cfg, logger) entrypoint, explicit component
// wiring, a Handler() accessor for cmd/server/main.go's http.Server).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cloud-consulting/email-engine/internal/breaker"
	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/config"
	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/enqueueapi"
	"github.com/cloud-consulting/email-engine/internal/handlers"
	"github.com/cloud-consulting/email-engine/internal/monitor"
	"github.com/cloud-consulting/email-engine/internal/providers"
	"github.com/cloud-consulting/email-engine/internal/quota"
	"github.com/cloud-consulting/email-engine/internal/queue"
	"github.com/cloud-consulting/email-engine/internal/ratelimit"
	"github.com/cloud-consulting/email-engine/internal/storage"
	"github.com/cloud-consulting/email-engine/internal/suppression"
	"github.com/cloud-consulting/email-engine/internal/utils"
	"github.com/cloud-consulting/email-engine/internal/vault"
	"github.com/cloud-consulting/email-engine/internal/worker"
)

// Version is the build-time reported in /health.
const Version = "1.0.0"

// Server owns the gin engine and every component's resources that need
// an orderly shutdown.
type Server struct {
	engine *gin.Engine
	db     *storage.DatabaseConnection
	redis  *storage.RedisConnection
	gormDB *gorm.DB
	vault  *vault.Vault
	logger *logrus.Logger
}

// New constructs every component and registers routes.
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	db, err := storage.NewDatabaseConnection(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("server: database: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.RunMigration(migrateCtx, storage.EmailEngineMigrationSQL())
	cancel()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("server: migration: %w", err)
	}

	redisConn, err := storage.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("server: redis: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.GetDB()}), &gorm.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("server: gorm: %w", err)
	}
	if err := gormDB.AutoMigrate(&domain.ProviderHealthHistory{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: gorm automigrate: %w", err)
	}

	clk := clock.Real{}

	v := vault.New(toVaultEnv(cfg.Environment()), envLookup(cfg), cfg.SES.Region, clk, logger)

	adapters := buildAdapters(cfg, v, logger)

	quotaLedger := quota.New(db.GetDB(), clk, logger)
	tracker := breaker.New(db.GetDB(), clk, logger)
	suppressionList := suppression.New(db.GetDB(), clk, logger)
	queueStore := queue.New(db.GetDB(), clk, logger)

	var redisClient *redis.Client
	if redisConn != nil {
		redisClient = redisConn.Client()
	}
	limiter := ratelimit.New(redisClient, clk, logger)

	wkr := worker.New(queueStore, limiter, quotaLedger, tracker, suppressionList, adapters, redisConn, clk, logger)
	mon := monitor.New(adapters, tracker, quotaLedger, gormDB, clk, logger)
	enqueue := enqueueapi.New(queueStore, suppressionList, limiter, logger)

	engine := newEngine(cfg, logger)
	registerRoutes(engine, cfg, enqueue, wkr, mon, logger)

	return &Server{engine: engine, db: db, redis: redisConn, gormDB: gormDB, vault: v, logger: logger}, nil
}

// Handler returns the HTTP handler for cmd/server/main.go's http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases every component's held resources.
func (s *Server) Close() error {
	s.vault.Shutdown()
	if s.redis != nil {
		s.redis.Close()
	}
	return s.db.Close()
}

func toVaultEnv(env config.Environment) vault.Environment {
	if env == config.EnvProduction {
		return vault.EnvProduction
	}
	return vault.EnvDevelopment
}

func envLookup(cfg *config.Config) vault.EnvLookup {
	values := map[string]string{
		"RESEND_API_KEY":        cfg.Resend.APIKey,
		"BREVO_API_KEY":         cfg.Brevo.APIKey,
		"AWS_ACCESS_KEY_ID":     cfg.SES.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": cfg.SES.SecretAccessKey,
	}
	return func(key string) (string, bool) {
		v, ok := values[key]
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}
}

func buildAdapters(cfg *config.Config, v *vault.Vault, logger *logrus.Logger) map[domain.Provider]providers.Adapter {
	adapters := make(map[domain.Provider]providers.Adapter)

	if cfg.IsConfigured("resend") {
		adapters[domain.ProviderResend] = providers.NewResendAdapter(v, cfg.Resend.FromEmail, cfg.Resend.FromName, logger)
	}
	if cfg.IsConfigured("brevo") {
		adapters[domain.ProviderBrevo] = providers.NewBrevoAdapter(v, cfg.Brevo.FromEmail, cfg.Brevo.FromName, logger)
	}
	if cfg.IsConfigured("ses") {
		adapters[domain.ProviderSES] = providers.NewSESAdapter(v, cfg.SES.FromEmail, cfg.SES.FromName, clock.Real{}, logger)
	}

	return adapters
}

func newEngine(cfg *config.Config, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	binding.Validator = utils.NewValidator()
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(cors(cfg.CORSAllowedOrigins))
	return engine
}

func registerRoutes(
	engine *gin.Engine,
	cfg *config.Config,
	enqueue *enqueueapi.API,
	wkr *worker.Worker,
	mon *monitor.Monitor,
	logger *logrus.Logger,
) {
	enqueueHandler := handlers.NewEnqueueHandler(enqueue, logger)
	queueHandler := handlers.NewQueueHandler(wkr, logger)
	healthHandler := handlers.NewHealthHandler(mon, Version, logger)

	engine.GET("/health", healthHandler.Liveness)

	api := engine.Group("/api")
	{
		emails := api.Group("/emails")
		if cfg.EnqueueJWTSecret != "" {
			emails.Use(handlers.OptionalCallerJWT(cfg.EnqueueJWTSecret))
		}
		emails.POST("", enqueueHandler.Enqueue)

		protected := api.Group("")
		protected.Use(handlers.BearerAuth(cfg.CronSecret))
		protected.POST("/queue/process", queueHandler.Process)
		protected.GET("/health/monitor", healthHandler.Monitor)
	}
}

// requestLogger logs one structured entry per request, modeled on the
// teacher's server.go request-logging middleware.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

// cors allows the configured origins, mirroring the teacher's
// hand-rolled CORS middleware (no gin-contrib/cors dependency in the
// teacher's stack).
func cors(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
