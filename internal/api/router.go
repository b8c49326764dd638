// Package api wires the HTTP routes of the SSO server onto services.Identity.
//
// Every identity route is called by a service (or the root key) with its key
// in the Authorization header. Routes that act for an end user additionally
// read the User-Authorization header. Handlers only translate between JSON and
// the service layer; authentication, authorisation and auditing all happen in
// internal/services so a request rejected for any reason still leaves an audit
// row.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/middleware"
	"github.com/sso-registry/sso/internal/services"
)

// Handlers holds the dependencies of the route handlers.
type Handlers struct {
	identity *services.Identity
}

// NewRouter creates the Gin engine. limiter may be nil to disable rate
// limiting.
func NewRouter(cfg *config.Config, identity *services.Identity, limiter middleware.Limiter) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.CallerMiddleware())

	h := &Handlers{identity: identity}

	router.GET("/health", h.health)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	v1 := router.Group("/v1")
	if limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter))
	}

	authGroup := v1.Group("/auth")
	{
		local := authGroup.Group("/provider/local")
		local.POST("/login", h.login)
		local.POST("/register", h.register)
		local.POST("/register/confirm", h.registerConfirm)
		local.POST("/register/revoke", h.registerRevoke)
		local.POST("/reset-password", h.resetPassword)
		local.POST("/reset-password/confirm", h.resetPasswordConfirm)
		local.POST("/reset-password/revoke", h.resetPasswordRevoke)
		local.POST("/update-email", h.updateEmail)
		local.POST("/update-email/revoke", h.updateEmailRevoke)
		local.POST("/update-password", h.updatePassword)
		local.POST("/update-password/revoke", h.updatePasswordRevoke)

		authGroup.GET("/provider/github/oauth2", h.githubOauth2URL)
		authGroup.POST("/provider/github/oauth2", h.githubOauth2Callback)
		authGroup.GET("/provider/microsoft/oauth2", h.microsoftOauth2URL)
		authGroup.POST("/provider/microsoft/oauth2", h.microsoftOauth2Callback)

		authGroup.POST("/key/verify", h.keyVerify)
		authGroup.POST("/key/revoke", h.keyRevoke)
		authGroup.POST("/token/verify", h.tokenVerify)
		authGroup.POST("/token/refresh", h.tokenRefresh)
		authGroup.POST("/token/revoke", h.tokenRevoke)
		authGroup.POST("/totp", h.totpVerify)
	}

	audits := v1.Group("/audit")
	{
		audits.GET("", h.auditList)
		audits.POST("", h.auditCreate)
		audits.GET("/metrics", h.auditMetrics)
		audits.GET("/:audit_id", h.auditRead)
		audits.PATCH("/:audit_id", h.auditUpdate)
	}

	keys := v1.Group("/key")
	{
		keys.GET("", h.keyList)
		keys.POST("", h.keyCreate)
		keys.GET("/:key_id", h.keyRead)
		keys.PATCH("/:key_id", h.keyUpdate)
		keys.DELETE("/:key_id", h.keyDelete)
	}

	svcs := v1.Group("/service")
	{
		svcs.GET("", h.serviceList)
		svcs.POST("", h.serviceCreate)
		svcs.GET("/:service_id", h.serviceRead)
		svcs.PATCH("/:service_id", h.serviceUpdate)
		svcs.DELETE("/:service_id", h.serviceDelete)
	}

	users := v1.Group("/user")
	{
		users.GET("", h.userList)
		users.POST("", h.userCreate)
		users.GET("/:user_id", h.userRead)
		users.PATCH("/:user_id", h.userUpdate)
		users.DELETE("/:user_id", h.userDelete)
	}

	return router, nil
}

// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.identity.Driver().Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
