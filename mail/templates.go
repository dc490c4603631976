package mail

import (
	"bytes"
	"errors"
	"html"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
)

const (
	SubjectVerification  = "Verify your email address"
	SubjectPasswordReset = "Reset your password"
)

const maxNameRunes = 100

type templateData struct {
	Name string
	Link string
}

var (
	verificationText = texttemplate.Must(texttemplate.New("verify.txt").Parse(
		`{{if .Name}}Hi {{.Name}},

{{end}}Thanks for signing up for the finance dashboard.

Confirm your email by visiting: {{.Link}}

If you did not create an account, you can ignore this message.
`))
	verificationHTML = htmltemplate.Must(htmltemplate.New("verify.html").Parse(
		`{{if .Name}}<p>Hi {{.Name}},</p>{{end}}<p>Thanks for signing up for the finance dashboard.</p>` +
			`<p><a href="{{.Link}}">Confirm your email address</a></p>` +
			`<p>If you did not create an account, you can ignore this message.</p>`))

	resetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(
		`{{if .Name}}Hi {{.Name}},

{{end}}A request was made to reset your password.

Reset your password by visiting: {{.Link}}

If you did not request this change, you can ignore this message.
`))
	resetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(
		`{{if .Name}}<p>Hi {{.Name}},</p>{{end}}<p>A request was made to reset your password.</p>` +
			`<p><a href="{{.Link}}">Reset your password</a></p>` +
			`<p>If you did not request this change, you can ignore this message.</p>`))
)

// Templates renders verification and reset mails with links into the
// frontend.
type Templates struct {
	base   *url.URL
	policy *bluemonday.Policy
}

// NewTemplates parses frontendURL, which must be absolute.
func NewTemplates(frontendURL string) (*Templates, error) {
	u, err := url.Parse(strings.TrimRight(frontendURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("mail: frontend URL must be absolute")
	}
	return &Templates{base: u, policy: bluemonday.StrictPolicy()}, nil
}

// Verification renders the email verification mail for token.
func (t *Templates) Verification(to, name, token string) (Message, error) {
	return t.render(to, name, SubjectVerification, t.link("/verify-email", token), verificationText, verificationHTML)
}

// PasswordReset renders the password reset mail for token.
func (t *Templates) PasswordReset(to, name, token string) (Message, error) {
	return t.render(to, name, SubjectPasswordReset, t.link("/reset-password", token), resetText, resetHTML)
}

func (t *Templates) link(path, token string) string {
	u := *t.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// displayName strips markup and line breaks from a user-supplied name.
func (t *Templates) displayName(name string) string {
	clean := html.UnescapeString(t.policy.Sanitize(name))
	clean = strings.Join(strings.Fields(clean), " ")
	if r := []rune(clean); len(r) > maxNameRunes {
		clean = string(r[:maxNameRunes])
	}
	return clean
}

func (t *Templates) render(to, name, subject, link string, txt *texttemplate.Template, page *htmltemplate.Template) (Message, error) {
	data := templateData{Name: t.displayName(name), Link: link}

	var text, body bytes.Buffer
	if err := txt.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := page.Execute(&body, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, Text: text.String(), HTML: body.String()}, nil
}
