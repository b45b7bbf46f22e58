package messaging

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultFromEmail = "noreply@bananabit.dev"
	DefaultFromName  = "BananaBit CMS"

	SubjectVerification = "Verify Your Email - BananaBit CMS"
	SubjectWelcome      = "Welcome to BananaBit CMS"
)

//go:embed templates
var templatesFS embed.FS

// Message is one outgoing email with a plain text and an HTML body.
type Message struct {
	FromName string
	From     string
	To       string
	Subject  string
	Text     string
	HTML     string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Mailer renders the account emails and hands them to a Sender. It
// implements auth.Messenger.
type Mailer struct {
	sender    Sender
	templates *bananabit.TemplateSet
	from      string
	fromName  string
	baseURL   string
	tokenTTL  time.Duration
	logger    bananabit.Logger
}

var _ auth.Messenger = (*Mailer)(nil)

// MailerOption customizes a Mailer.
type MailerOption func(*Mailer)

// WithFrom sets the sender address and display name.
func WithFrom(email, name string) MailerOption {
	return func(m *Mailer) {
		if email = strings.TrimSpace(email); email != "" {
			m.from = email
		}
		if name = strings.TrimSpace(name); name != "" {
			m.fromName = name
		}
	}
}

// WithBaseURL sets the site URL used by links that do not come with one,
// such as the login link of the welcome message.
func WithBaseURL(baseURL string) MailerOption {
	return func(m *Mailer) {
		if baseURL != "" {
			m.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTokenTTL sets the validity announced in the verification message.
func WithTokenTTL(ttl time.Duration) MailerOption {
	return func(m *Mailer) {
		if ttl > 0 {
			m.tokenTTL = ttl
		}
	}
}

// WithMailerLogger sets the mailer logger.
func WithMailerLogger(logger bananabit.Logger) MailerOption {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMailer loads the embedded email templates.
func NewMailer(sender Sender, opts ...MailerOption) (*Mailer, error) {
	if sender == nil {
		return nil, goerrors.New("mail sender is required", goerrors.CategoryInternal)
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open email templates")
	}
	templates, err := bananabit.NewTemplateSet(sub)
	if err != nil {
		return nil, err
	}

	m := &Mailer{
		sender:    sender,
		templates: templates,
		from:      DefaultFromEmail,
		fromName:  DefaultFromName,
		baseURL:   auth.DefaultBaseURL,
		tokenTTL:  auth.DefaultTokenTTL,
		logger:    bananabit.DefaultLogger("mailer"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// VerificationURL returns the link that consumes token.
func VerificationURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

// SendVerificationMessage sends the verification link for token to the
// account owner.
func (m *Mailer) SendVerificationMessage(ctx context.Context, to, token, baseURL string) error {
	if baseURL == "" {
		baseURL = m.baseURL
	}

	msg, err := m.compose("verification", to, SubjectVerification, map[string]any{
		"verify_url": VerificationURL(baseURL, token),
		"token":      token,
		"expires_in": humanDuration(m.tokenTTL),
	})
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

// SendWelcomeMessage greets a freshly verified account owner.
func (m *Mailer) SendWelcomeMessage(ctx context.Context, to string) error {
	msg, err := m.compose("welcome", to, SubjectWelcome, map[string]any{
		"login_url": m.baseURL + "/login",
	})
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

func (m *Mailer) compose(name, to, subject string, data map[string]any) (Message, error) {
	data["name"] = recipientName(to)
	data["site_name"] = m.fromName

	text, err := m.templates.Render("text/"+name, data)
	if err != nil {
		return Message{}, err
	}
	html, err := m.templates.Render("html/"+name, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		FromName: m.fromName,
		From:     m.from,
		To:       to,
		Subject:  subject,
		Text:     strings.TrimSpace(text) + "\n",
		HTML:     html,
	}, nil
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Error("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{
				"subject": msg.Subject,
			})
	}
	m.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func recipientName(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
