package messaging

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	gomail "github.com/wneessen/go-mail"
)

const (
	DefaultSMTPHost    = "localhost"
	DefaultSMTPPort    = 1025
	DefaultSMTPTimeout = 15 * time.Second
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPSender delivers messages to an SMTP relay. STARTTLS is used when the
// relay offers it. Credentials are only sent when both username and password
// are set.
type SMTPSender struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPSender returns a sender for cfg. Empty host and port fall back to
// localhost:1025.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Host == "" {
		cfg.Host = DefaultSMTPHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	return &SMTPSender{cfg: cfg, now: time.Now}
}

// Addr returns host:port of the relay.
func (s *SMTPSender) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.compose(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid smtp settings").
			WithMetadata(map[string]any{
				"addr": s.Addr(),
			})
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver mail").
			WithMetadata(map[string]any{
				"addr": s.Addr(),
			})
	}
	return nil
}

// WriteMessage writes msg in wire format to w without contacting the relay.
func (s *SMTPSender) WriteMessage(w io.Writer, msg Message) error {
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	if _, err := m.WriteTo(w); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode mail")
	}
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// compose builds a multipart/alternative message when both bodies are set.
func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()

	var err error
	if msg.FromName != "" {
		err = m.FromFormat(msg.FromName, msg.From)
	} else {
		err = m.From(msg.From)
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := m.To(msg.To); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}

	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now())
	m.SetMessageID()

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return m, nil
}
