package audit

// Audit types are stable identifiers stored with every row. They are part of
// the public audit API and must not be renamed.
const (
	TypeAuthLocalLogin                = "sso:auth:local:login"
	TypeAuthLocalRegister             = "sso:auth:local:register"
	TypeAuthLocalRegisterConfirm      = "sso:auth:local:register_confirm"
	TypeAuthLocalRegisterRevoke       = "sso:auth:local:register_revoke"
	TypeAuthLocalResetPassword        = "sso:auth:local:reset_password"
	TypeAuthLocalResetPasswordConfirm = "sso:auth:local:reset_password_confirm"
	TypeAuthLocalResetPasswordRevoke  = "sso:auth:local:reset_password_revoke"
	TypeAuthLocalUpdateEmail          = "sso:auth:local:update_email"
	TypeAuthLocalUpdateEmailRevoke    = "sso:auth:local:update_email_revoke"
	TypeAuthLocalUpdatePassword       = "sso:auth:local:update_password"
	TypeAuthLocalUpdatePasswordRevoke = "sso:auth:local:update_password_revoke"

	TypeAuthGithubOauth2Url         = "sso:auth:github:oauth2_url"
	TypeAuthGithubOauth2Callback    = "sso:auth:github:oauth2_callback"
	TypeAuthMicrosoftOauth2Url      = "sso:auth:microsoft:oauth2_url"
	TypeAuthMicrosoftOauth2Callback = "sso:auth:microsoft:oauth2_callback"

	TypeAuthKeyVerify    = "sso:auth:key:verify"
	TypeAuthKeyRevoke    = "sso:auth:key:revoke"
	TypeAuthTokenVerify  = "sso:auth:token:verify"
	TypeAuthTokenRefresh = "sso:auth:token:refresh"
	TypeAuthTokenRevoke  = "sso:auth:token:revoke"
	TypeAuthTotpVerify   = "sso:auth:totp:verify"

	TypeAuditCreate = "sso:audit:create"
	TypeAuditUpdate = "sso:audit:update"

	TypeKeyList   = "sso:key:list"
	TypeKeyCreate = "sso:key:create"
	TypeKeyRead   = "sso:key:read"
	TypeKeyUpdate = "sso:key:update"
	TypeKeyDelete = "sso:key:delete"

	TypeServiceList   = "sso:service:list"
	TypeServiceCreate = "sso:service:create"
	TypeServiceRead   = "sso:service:read"
	TypeServiceUpdate = "sso:service:update"
	TypeServiceDelete = "sso:service:delete"

	TypeUserList   = "sso:user:list"
	TypeUserCreate = "sso:user:create"
	TypeUserRead   = "sso:user:read"
	TypeUserUpdate = "sso:user:update"
	TypeUserDelete = "sso:user:delete"
)

// Types returns every audit type in a stable order.
func Types() []string {
	return []string{
		TypeAuthLocalLogin,
		TypeAuthLocalRegister,
		TypeAuthLocalRegisterConfirm,
		TypeAuthLocalRegisterRevoke,
		TypeAuthLocalResetPassword,
		TypeAuthLocalResetPasswordConfirm,
		TypeAuthLocalResetPasswordRevoke,
		TypeAuthLocalUpdateEmail,
		TypeAuthLocalUpdateEmailRevoke,
		TypeAuthLocalUpdatePassword,
		TypeAuthLocalUpdatePasswordRevoke,
		TypeAuthGithubOauth2Url,
		TypeAuthGithubOauth2Callback,
		TypeAuthMicrosoftOauth2Url,
		TypeAuthMicrosoftOauth2Callback,
		TypeAuthKeyVerify,
		TypeAuthKeyRevoke,
		TypeAuthTokenVerify,
		TypeAuthTokenRefresh,
		TypeAuthTokenRevoke,
		TypeAuthTotpVerify,
		TypeAuditCreate,
		TypeAuditUpdate,
		TypeKeyList,
		TypeKeyCreate,
		TypeKeyRead,
		TypeKeyUpdate,
		TypeKeyDelete,
		TypeServiceList,
		TypeServiceCreate,
		TypeServiceRead,
		TypeServiceUpdate,
		TypeServiceDelete,
		TypeUserList,
		TypeUserCreate,
		TypeUserRead,
		TypeUserUpdate,
		TypeUserDelete,
	}
}
