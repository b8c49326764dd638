// Package middleware provides the Gin middleware of the SSO API. Every route
// registered in internal/api/router.go runs behind the same chain: recovery,
// request id, metrics, logging, security headers, CORS, caller extraction and
// rate limiting.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/services"
)

const (
	// CallerKey is the gin.Context key under which the services.Caller of the
	// request is stored.
	CallerKey = "caller"

	// UserAuthorizationHeader carries the end user's key or token when a
	// service calls on behalf of a user.
	UserAuthorizationHeader = "User-Authorization"

	// ForwardedForHeader is recorded verbatim on every audit row.
	ForwardedForHeader = "X-Forwarded-For"
)

// CallerMiddleware extracts the audit metadata and the service key of every
// request and stores them under CallerKey. It never rejects a request: a
// missing Authorization header surfaces as key_undefined from the operation
// that needs the key, so the failure is audited like any other.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CallerKey, callerOf(c))
		c.Next()
	}
}

// CallerFrom returns the caller stored by CallerMiddleware. When the
// middleware did not run the caller is built from the request.
func CallerFrom(c *gin.Context) services.Caller {
	if v, ok := c.Get(CallerKey); ok {
		if caller, ok := v.(services.Caller); ok {
			return caller
		}
	}
	return callerOf(c)
}

func callerOf(c *gin.Context) services.Caller {
	meta := audit.Meta{
		UserAgent: c.Request.UserAgent(),
		Remote:    c.ClientIP(),
		User:      auth.ParseHeader(c.GetHeader(UserAuthorizationHeader)),
	}
	if fwd := c.GetHeader(ForwardedForHeader); fwd != "" {
		meta.Forwarded = &fwd
	}
	key, _ := auth.ParseKey(c.GetHeader("Authorization"))
	return services.Caller{Meta: meta, Key: key}
}
