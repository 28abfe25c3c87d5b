// Package email sends magic-link and moderation notification mail via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-commentkit"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type MagicLinkData struct {
	AppName   string
	LoginURL  string
	ExpiresIn string
}

type PendingCommentData struct {
	AppName      string
	SiteName     string
	PageTitle    string
	AuthorName   string
	Excerpt      string
	DashboardURL string
}

func (s *Service) SendMagicLinkEmail(to, loginURL, expiresIn string) error {
	data := MagicLinkData{AppName: "CommentKit", LoginURL: loginURL, ExpiresIn: expiresIn}
	html, err := renderTemplate(magicLinkEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render magic link template: %w", err)
	}
	text := fmt.Sprintf("Sign in to CommentKit: %s\r\nThis link expires in %s and can be used once.", loginURL, expiresIn)
	return s.SendHTMLEmail([]string{to}, "Your CommentKit sign-in link", text, html)
}

// SendPendingCommentEmail tells a site owner a comment is waiting for review.
func (s *Service) SendPendingCommentEmail(to string, data PendingCommentData) error {
	data.AppName = "CommentKit"
	data.Excerpt = excerpt(data.Excerpt, 280)
	html, err := renderTemplate(pendingCommentEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render pending comment template: %w", err)
	}
	text := fmt.Sprintf("%s commented on %s (%s):\r\n\r\n%s\r\n\r\nReview: %s",
		data.AuthorName, data.PageTitle, data.SiteName, data.Excerpt, data.DashboardURL)
	subject := fmt.Sprintf("New comment awaiting moderation on %s", data.SiteName)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func excerpt(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "…"
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #4f46e5; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #4f46e5; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #4f46e5; }
        blockquote { border-left: 3px solid #ddd; margin: 0; padding-left: 12px; color: #555; white-space: pre-wrap; }`

const magicLinkEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Sign in to {{.AppName}}</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Click the button below to sign in. No password needed.</p>

    <p>
        <a href="{{.LoginURL}}" class="button">Sign in</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.LoginURL}}</p>

    <p>This link expires in {{.ExpiresIn}} and can only be used once.</p>

    <div class="footer">
        <p>If you didn't ask to sign in to {{.AppName}}, you can safely ignore this email.</p>
    </div>
</body>
</html>`

const pendingCommentEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New comment on {{.SiteName}}</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p><strong>{{.AuthorName}}</strong> commented on <em>{{.PageTitle}}</em>:</p>

    <blockquote>{{.Excerpt}}</blockquote>

    <p>
        <a href="{{.DashboardURL}}" class="button">Review comment</a>
    </p>

    <div class="footer">
        <p>You are receiving this because you own {{.SiteName}}.</p>
    </div>
</body>
</html>`
