// Package email renders and delivers the messages sent by the local
// authentication flows. Every message links back to the service's local
// provider URL with a typed token in the query string; the service decides
// how to present the confirm or revoke step to its user.
package email

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
)

// Kind names a message and is also the type query parameter of its link.
type Kind string

const (
	KindRegister             Kind = "register"
	KindRegisterConfirm      Kind = "register_confirm"
	KindResetPassword        Kind = "reset_password"
	KindResetPasswordConfirm Kind = "reset_password_confirm"
	KindUpdateEmail          Kind = "update_email"
	KindUpdatePassword       Kind = "update_password"
)

// Template is a rendered message ready to be sent.
type Template struct {
	Kind    Kind
	To      string
	ToName  string
	Subject string
	Text    string
}

type data struct {
	ServiceName string
	ServiceURL  string
	UserName    string
	OldEmail    string
	NewEmail    string
	Link        string
	UserAgent   string
	Remote      string
	Forwarded   string
}

// linkTypes is the type parameter of the link in each message, i.e. the step
// the recipient is asked to take next.
var linkTypes = map[Kind]string{
	KindRegister:             "register_confirm",
	KindRegisterConfirm:      "register_revoke",
	KindResetPassword:        "reset_password_confirm",
	KindResetPasswordConfirm: "reset_password_revoke",
	KindUpdateEmail:          "update_email_revoke",
	KindUpdatePassword:       "update_password_revoke",
}

var subjects = map[Kind]string{
	KindRegister:             "{{.ServiceName}}: Confirm your registration",
	KindRegisterConfirm:      "{{.ServiceName}}: Registration complete",
	KindResetPassword:        "{{.ServiceName}}: Reset your password",
	KindResetPasswordConfirm: "{{.ServiceName}}: Your password was reset",
	KindUpdateEmail:          "{{.ServiceName}}: Your email address was changed",
	KindUpdatePassword:       "{{.ServiceName}}: Your password was changed",
}

const footer = `
Request details:
  User agent: {{.UserAgent}}
  Address:    {{.Remote}}{{if .Forwarded}} (forwarded for {{.Forwarded}}){{end}}

-- {{.ServiceName}} ({{.ServiceURL}})
`

var bodies = map[Kind]string{
	KindRegister: `Hello {{.UserName}},

Someone asked to register this email address with {{.ServiceName}}.
To finish registering, open the link below:

  {{.Link}}

If this was not you, you can ignore this message.
`,
	KindRegisterConfirm: `Hello {{.UserName}},

Your registration with {{.ServiceName}} is complete.
If this was not you, open the link below to disable the account:

  {{.Link}}
`,
	KindResetPassword: `Hello {{.UserName}},

Someone asked to reset the password of your {{.ServiceName}} account.
To choose a new password, open the link below:

  {{.Link}}

If this was not you, you can ignore this message.
`,
	KindResetPasswordConfirm: `Hello {{.UserName}},

The password of your {{.ServiceName}} account was reset.
If this was not you, open the link below to disable the account:

  {{.Link}}
`,
	KindUpdateEmail: `Hello {{.UserName}},

The email address of your {{.ServiceName}} account was changed from {{.OldEmail}} to {{.NewEmail}}.
If this was not you, open the link below to disable the account:

  {{.Link}}
`,
	KindUpdatePassword: `Hello {{.UserName}},

The password of your {{.ServiceName}} account was changed.
If this was not you, open the link below to disable the account:

  {{.Link}}
`,
}

var templates = func() *template.Template {
	root := template.New("email")
	for kind, subject := range subjects {
		template.Must(root.New(string(kind) + ".subject").Parse(subject))
		template.Must(root.New(string(kind) + ".body").Parse(bodies[kind] + footer))
	}
	return root
}()

// Register asks the user to confirm a registration.
func Register(service *models.Service, user *models.User, token string, meta audit.Meta) (*Template, error) {
	return render(KindRegister, service, user, user.Email, "", token, meta)
}

// RegisterConfirm tells the user their registration completed.
func RegisterConfirm(service *models.Service, user *models.User, token string, meta audit.Meta) (*Template, error) {
	return render(KindRegisterConfirm, service, user, user.Email, "", token, meta)
}

// ResetPassword asks the user to choose a new password.
func ResetPassword(service *models.Service, user *models.User, token string, meta audit.Meta) (*Template, error) {
	return render(KindResetPassword, service, user, user.Email, "", token, meta)
}

// ResetPasswordConfirm tells the user their password was reset.
func ResetPasswordConfirm(service *models.Service, user *models.User, token string, meta audit.Meta) (*Template, error) {
	return render(KindResetPasswordConfirm, service, user, user.Email, "", token, meta)
}

// UpdateEmail tells the user their email changed. It is sent to the previous
// address, which is the one an attacker cannot read.
func UpdateEmail(service *models.Service, user *models.User, oldEmail, token string, meta audit.Meta) (*Template, error) {
	return render(KindUpdateEmail, service, user, oldEmail, oldEmail, token, meta)
}

// UpdatePassword tells the user their password changed.
func UpdatePassword(service *models.Service, user *models.User, token string, meta audit.Meta) (*Template, error) {
	return render(KindUpdatePassword, service, user, user.Email, "", token, meta)
}

func render(kind Kind, service *models.Service, user *models.User, to, oldEmail, token string, meta audit.Meta) (*Template, error) {
	link, err := Link(service, linkTypes[kind], token)
	if err != nil {
		return nil, err
	}

	d := &data{
		ServiceName: service.Name,
		ServiceURL:  service.URL,
		UserName:    user.Name,
		OldEmail:    oldEmail,
		NewEmail:    user.Email,
		Link:        link,
		UserAgent:   meta.UserAgent,
		Remote:      meta.Remote,
	}
	if meta.Forwarded != nil {
		d.Forwarded = *meta.Forwarded
	}

	subject, err := execute(string(kind)+".subject", d)
	if err != nil {
		return nil, err
	}
	text, err := execute(string(kind)+".body", d)
	if err != nil {
		return nil, err
	}
	return &Template{
		Kind:    kind,
		To:      to,
		ToName:  user.Name,
		Subject: strings.TrimSpace(subject),
		Text:    text,
	}, nil
}

func execute(name string, d *data) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("failed to render email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Link returns the service's local provider URL with type and token query
// parameters added. Services without a local provider URL cannot receive
// local authentication emails.
func Link(service *models.Service, typ, token string) (string, error) {
	if service.ProviderLocalURL == nil || *service.ProviderLocalURL == "" {
		return "", auth.ErrServiceProviderLocalDisabled
	}
	u, err := url.Parse(*service.ProviderLocalURL)
	if err != nil {
		return "", auth.BadRequest(fmt.Errorf("invalid provider local url: %w", err))
	}
	q := u.Query()
	q.Set("type", typ)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
