package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config is the process configuration, read from BANANABIT_* variables.
type Config struct {
	HTTPAddr        string        `env:"BANANABIT_HTTP_ADDR" envDefault:":8080" json:"http_addr"`
	DatabaseDSN     string        `env:"BANANABIT_DATABASE_DSN" envDefault:"file:bananabit.db?cache=shared" json:"database_dsn"`
	ShutdownTimeout time.Duration `env:"BANANABIT_SHUTDOWN_TIMEOUT" envDefault:"10s" json:"shutdown_timeout"`
	Debug           bool          `env:"BANANABIT_DEBUG" json:"debug"`
	UploadDir       string        `env:"BANANABIT_UPLOAD_DIR" envDefault:"uploads" json:"upload_dir"`

	BaseURL          string        `env:"BANANABIT_BASE_URL" envDefault:"http://localhost:8080" json:"base_url"`
	TokenTTL         time.Duration `env:"BANANABIT_TOKEN_TTL" envDefault:"24h" json:"token_ttl"`
	DeterministicIDs bool          `env:"BANANABIT_DETERMINISTIC_IDS" json:"deterministic_ids"`
	CaptchaQuestion  string        `env:"BANANABIT_CAPTCHA_QUESTION" envDefault:"Who's bananabit?" json:"captcha_question"`
	CaptchaAnswer    string        `env:"BANANABIT_CAPTCHA_ANSWER" envDefault:"a cool dude" json:"-"`

	MailDriver   string        `env:"BANANABIT_MAIL_DRIVER" envDefault:"smtp" json:"mail_driver"`
	EmailTimeout time.Duration `env:"BANANABIT_EMAIL_TIMEOUT" envDefault:"10s" json:"email_timeout"`
	SMTPHost     string        `env:"BANANABIT_SMTP_HOST" envDefault:"localhost" json:"smtp_host"`
	SMTPPort     int           `env:"BANANABIT_SMTP_PORT" envDefault:"1025" json:"smtp_port"`
	SMTPUsername string        `env:"BANANABIT_SMTP_USERNAME" json:"smtp_username"`
	SMTPPassword string        `env:"BANANABIT_SMTP_PASSWORD" json:"-"`
	FromEmail    string        `env:"BANANABIT_FROM_EMAIL" envDefault:"noreply@bananabit.dev" json:"from_email"`
	FromName     string        `env:"BANANABIT_FROM_NAME" envDefault:"BananaBit CMS" json:"from_name"`

	RelayInterval    time.Duration `env:"BANANABIT_RELAY_INTERVAL" envDefault:"30s" json:"relay_interval"`
	RelayMaxAttempts int           `env:"BANANABIT_RELAY_MAX_ATTEMPTS" envDefault:"5" json:"relay_max_attempts"`
}

var _ auth.Config = (*Config)(nil)

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom reads configuration from environ instead of the process
// environment, then validates it.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment").
			WithCode(goerrors.CodeBadRequest)
	}

	cfg.MailDriver = strings.ToLower(strings.TrimSpace(cfg.MailDriver))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithCode(goerrors.CodeBadRequest)
	}
	return cfg, nil
}

// Validate will run validation rules. Threshold rules skip zero values so
// numeric settings are also Required.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.UploadDir, validation.Required),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.CaptchaQuestion, validation.Required),
		validation.Field(&c.CaptchaAnswer, validation.Required),
		validation.Field(&c.MailDriver, validation.Required, validation.In(MailDriverSMTP, MailDriverLog)),
		validation.Field(&c.EmailTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SMTPHost, validation.Required),
		validation.Field(&c.SMTPPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.FromEmail, validation.Required, is.Email),
		validation.Field(&c.RelayInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RelayMaxAttempts, validation.Required, validation.Min(1)),
	)
}

func (c *Config) GetBaseURL() string {
	return c.BaseURL
}

func (c *Config) GetTokenTTL() time.Duration {
	return c.TokenTTL
}

func (c *Config) GetEmailTimeout() time.Duration {
	return c.EmailTimeout
}

func (c *Config) GetCaptchaQuestion() string {
	return c.CaptchaQuestion
}

func (c *Config) GetCaptchaAnswer() string {
	return c.CaptchaAnswer
}

func (c *Config) GetDeterministicIDs() bool {
	return c.DeterministicIDs
}

func (c *Config) GetRelayInterval() time.Duration {
	return c.RelayInterval
}

func (c *Config) GetRelayMaxAttempts() int {
	return c.RelayMaxAttempts
}

// Raw returns the configuration without secrets, for dumps.
func (c *Config) Raw() map[string]any {
	return map[string]any{
		"http_addr":          c.HTTPAddr,
		"database_dsn":       c.DatabaseDSN,
		"shutdown_timeout":   c.ShutdownTimeout.String(),
		"debug":              c.Debug,
		"upload_dir":         c.UploadDir,
		"base_url":           c.BaseURL,
		"token_ttl":          c.TokenTTL.String(),
		"deterministic_ids":  c.DeterministicIDs,
		"captcha_question":   c.CaptchaQuestion,
		"mail_driver":        c.MailDriver,
		"email_timeout":      c.EmailTimeout.String(),
		"smtp_host":          c.SMTPHost,
		"smtp_port":          c.SMTPPort,
		"smtp_username":      c.SMTPUsername,
		"from_email":         c.FromEmail,
		"from_name":          c.FromName,
		"relay_interval":     c.RelayInterval.String(),
		"relay_max_attempts": c.RelayMaxAttempts,
	}
}
