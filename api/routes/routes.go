package routes

import (
	"net/http"
	"time"

	"mfaguard/api/handler"
	"mfaguard/api/middleware"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Router struct {
	Echo           *echo.Echo
	MFA            *handler.MFAHandler
	AuthMiddleware middleware.AuthMiddleware
	MFARate        *middleware.RateLimiter
	ChallengeRate  *middleware.RateLimiter
	AllowedOrigins []string
}

func NewRouter(e *echo.Echo, mfaHandler *handler.MFAHandler, authMiddleware middleware.AuthMiddleware, allowedOrigins []string) *Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Router{
		Echo:           e,
		MFA:            mfaHandler,
		AuthMiddleware: authMiddleware,
		MFARate:        middleware.NewRateLimiter(rate.Limit(5), 10, 5*time.Minute),
		ChallengeRate:  middleware.NewRateLimiter(rate.Limit(2), 4, 10*time.Minute),
		AllowedOrigins: allowedOrigins,
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: r.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "x-client-info", "apikey"},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/auth/mfa/challenge/verify", r.MFA.VerifyChallenge, r.ChallengeRate.Middleware())

	mfa := e.Group("/auth/mfa", r.AuthMiddleware.RequireAuth, r.MFARate.Middleware())
	mfa.GET("/status", r.MFA.Status)
	mfa.POST("/totp/setup", r.MFA.SetupTOTP)
	mfa.POST("/totp/confirm", r.MFA.ConfirmTOTP)
	mfa.POST("/disable", r.MFA.Disable)
	mfa.GET("/recovery-codes", r.MFA.RecoveryCodes)
	mfa.POST("/recovery-codes", r.MFA.RecoveryCodes)
	mfa.POST("/recovery-codes/redeem", r.MFA.RedeemRecoveryCode)
	mfa.GET("/audit-log", r.MFA.AuditLog)
	mfa.POST("/audit-log", r.MFA.AuditLog)
}
