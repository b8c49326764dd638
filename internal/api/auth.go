package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/middleware"
	"github.com/sso-registry/sso/internal/services"
)

// handleJSON decodes a Req body, calls fn with the request caller and writes
// its result with status.
func handleJSON[Req any, Resp any](c *gin.Context, status int, fn func(context.Context, services.Caller, *Req) (Resp, error)) {
	req := new(Req)
	if !bindJSON(c, req) {
		return
	}
	resp, err := fn(c.Request.Context(), middleware.CallerFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, resp)
}

// handleAccepted is handleJSON for operations without a result.
func handleAccepted[Req any](c *gin.Context, status int, fn func(context.Context, services.Caller, *Req) error) {
	req := new(Req)
	if !bindJSON(c, req) {
		return
	}
	if err := fn(c.Request.Context(), middleware.CallerFrom(c), req); err != nil {
		writeError(c, err)
		return
	}
	c.Status(status)
}

// ---------------------------------------------------------------------------
// Local provider
// ---------------------------------------------------------------------------

// @Summary      Login with email and password
// @Tags         Local
// @Security     Key
// @Accept       json
// @Produce      json
// @Param        body  body  services.LoginRequest  true  "Credentials"
// @Success      200  {object}  services.LoginResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /v1/auth/provider/local/login [post]
func (h *Handlers) login(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.Login)
}

func (h *Handlers) register(c *gin.Context) {
	handleAccepted(c, http.StatusAccepted, h.identity.Register)
}

func (h *Handlers) registerConfirm(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.RegisterConfirm)
}

func (h *Handlers) registerRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.RegisterRevoke)
}

// resetPassword answers 202 whether or not the email belongs to a user.
func (h *Handlers) resetPassword(c *gin.Context) {
	handleAccepted(c, http.StatusAccepted, h.identity.ResetPassword)
}

func (h *Handlers) resetPasswordConfirm(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.ResetPasswordConfirm)
}

func (h *Handlers) resetPasswordRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.ResetPasswordRevoke)
}

func (h *Handlers) updateEmail(c *gin.Context) {
	handleAccepted(c, http.StatusAccepted, h.identity.UpdateEmail)
}

func (h *Handlers) updateEmailRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.UpdateEmailRevoke)
}

func (h *Handlers) updatePassword(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.UpdatePassword)
}

func (h *Handlers) updatePasswordRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.UpdatePasswordRevoke)
}

// ---------------------------------------------------------------------------
// OAuth2 providers
// ---------------------------------------------------------------------------

// @Summary      GitHub authorization URL
// @Tags         OAuth2
// @Security     Key
// @Produce      json
// @Success      200  {object}  services.Oauth2URLResponse
// @Router       /v1/auth/provider/github/oauth2 [get]
func (h *Handlers) githubOauth2URL(c *gin.Context) {
	resp, err := h.identity.GithubOauth2URL(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) githubOauth2Callback(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.GithubOauth2Callback)
}

func (h *Handlers) microsoftOauth2URL(c *gin.Context) {
	resp, err := h.identity.MicrosoftOauth2URL(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) microsoftOauth2Callback(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.MicrosoftOauth2Callback)
}

// ---------------------------------------------------------------------------
// Keys, tokens and TOTP
// ---------------------------------------------------------------------------

func (h *Handlers) keyVerify(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.KeyVerify)
}

func (h *Handlers) keyRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.KeyRevoke)
}

// @Summary      Verify an access token
// @Tags         Token
// @Security     Key
// @Accept       json
// @Produce      json
// @Param        body  body  services.TokenRequest  true  "Token"
// @Success      200  {object}  services.TokenResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /v1/auth/token/verify [post]
func (h *Handlers) tokenVerify(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.TokenVerify)
}

func (h *Handlers) tokenRefresh(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.TokenRefresh)
}

func (h *Handlers) tokenRevoke(c *gin.Context) {
	handleJSON(c, http.StatusOK, h.identity.TokenRevoke)
}

func (h *Handlers) totpVerify(c *gin.Context) {
	handleAccepted(c, http.StatusNoContent, h.identity.TotpVerify)
}
