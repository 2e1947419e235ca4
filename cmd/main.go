package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mfaguard/api/handler"
	apiMiddleware "mfaguard/api/middleware"
	"mfaguard/api/routes"
	"mfaguard/config"
	"mfaguard/internal/repository"
	"mfaguard/internal/service"
	"mfaguard/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid config")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.ConnectionDb(cfg)
	if err != nil {
		logger.WithError(err).Fatal("database")
	}
	if cfg.AutoMigrate {
		if err := config.Migrate(db); err != nil {
			logger.WithError(err).Fatal("migrate")
		}
	}

	attempts := repository.NewOTPAttemptRepository(db)
	if cfg.LedgerBackend == config.LedgerRedis {
		client, err := config.ConnectionRedis(ctx, cfg)
		if err != nil {
			logger.WithError(err).Fatal("redis")
		}
		defer client.Close()
		attempts = repository.NewRedisOTPAttemptRepository(client, cfg.RedisKeyPrefix, cfg.LedgerRetention)
	}
	logger.WithField("backend", cfg.LedgerBackend).Info("attempt ledger ready")

	clock := service.RealClock{}
	hasher := service.BcryptHasher{Cost: cfg.BcryptCost}
	accessManager := utils.JWTManager{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
	}
	challenges := service.ChallengeTokenJWT{
		Secret: []byte(cfg.MFAJWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.ChallengeTokenTTL,
	}

	notifier := service.NewResendNotifier(cfg.ResendAPIKey, cfg.EmailFrom, cfg.AppName)
	if !notifier.Enabled() {
		logger.Warn("RESEND_API_KEY or EMAIL_FROM not set, security notifications disabled")
	}

	mfaService := service.NewMFAService(
		repository.NewMFAConfigRepository(db),
		service.NewJWTIdentityStore(&accessManager, repository.NewUserRepository(db), hasher),
		service.NewTOTPProvider(cfg.TOTPIssuer),
		service.NewRecoveryCodeVault(repository.NewRecoveryCodeRepository(db), hasher, clock, cfg.RecoveryCodeCount, cfg.RecoveryCodeLength),
		service.NewRateLimiter(attempts, clock, rateLimitPolicies(cfg)),
		service.NewAuditRecorder(repository.NewAuditLogRepository(db), clock, logger),
		challenges,
		notifier,
		clock,
		logger,
		service.Settings{
			Issuer:          cfg.TOTPIssuer,
			IdentityTimeout: cfg.IdentityTimeout,
			AuditQueryLimit: cfg.AuditQueryLimit,
		},
	)

	mfaHandler := handler.NewMFAHandler(mfaService, validator.New(), logger)

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.BodyLimit(cfg.BodyLimit))
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status":  v.Status,
				"method":  v.Method,
				"uri":     v.URI,
				"ip":      v.RemoteIP,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{Identity: mfaService, Logger: logger}
	router := routes.NewRouter(app, mfaHandler, authMiddleware, cfg.AllowedOrigins)
	router.RegisterRoutes()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("server started")
		if err := app.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	logger.Info("server stopped")
}

func rateLimitPolicies(cfg *config.Config) map[string]service.RateLimitPolicy {
	return map[string]service.RateLimitPolicy{
		service.OpTOTPSetup:       {Window: cfg.RateLimitSetupWindow, MaxAttempts: cfg.RateLimitSetupMax},
		service.OpTOTPConfirm:     {Window: cfg.RateLimitConfirmWindow, MaxAttempts: cfg.RateLimitConfirmMax},
		service.OpChallengeVerify: {Window: cfg.RateLimitChallengeWindow, MaxAttempts: cfg.RateLimitChallengeMax},
		service.OpRecoveryRedeem:  {Window: cfg.RateLimitRedeemWindow, MaxAttempts: cfg.RateLimitRedeemMax},
		service.OpDisable:         {Window: cfg.RateLimitDisableWindow, MaxAttempts: cfg.RateLimitDisableMax},
	}
}
