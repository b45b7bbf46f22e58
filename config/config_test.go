package config_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-bananabit/auth"
	"github.com/goliatone/go-bananabit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8080", cfg.GetBaseURL())
	assert.Equal(t, 24*time.Hour, cfg.GetTokenTTL())
	assert.Equal(t, 10*time.Second, cfg.GetEmailTimeout())
	assert.Equal(t, auth.DefaultCaptchaQuestion, cfg.GetCaptchaQuestion())
	assert.Equal(t, auth.DefaultCaptchaAnswer, cfg.GetCaptchaAnswer())
	assert.Equal(t, config.MailDriverSMTP, cfg.MailDriver)
	assert.Equal(t, "localhost", cfg.SMTPHost)
	assert.Equal(t, 1025, cfg.SMTPPort)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, "noreply@bananabit.dev", cfg.FromEmail)
	assert.Equal(t, "BananaBit CMS", cfg.FromName)
	assert.Equal(t, 30*time.Second, cfg.GetRelayInterval())
	assert.Equal(t, 5, cfg.GetRelayMaxAttempts())
	assert.False(t, cfg.GetDeterministicIDs())
	assert.False(t, cfg.Debug)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"BANANABIT_HTTP_ADDR":          "127.0.0.1:9000",
		"BANANABIT_BASE_URL":           "https://blog.example.com/",
		"BANANABIT_TOKEN_TTL":          "2h",
		"BANANABIT_MAIL_DRIVER":        " LOG ",
		"BANANABIT_SMTP_PORT":          "2525",
		"BANANABIT_DETERMINISTIC_IDS":  "true",
		"BANANABIT_RELAY_MAX_ATTEMPTS": "9",
		"BANANABIT_SMTP_PASSWORD":      "hunter2",
		"BANANABIT_DEBUG":              "1",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "https://blog.example.com", cfg.GetBaseURL())
	assert.Equal(t, 2*time.Hour, cfg.GetTokenTTL())
	assert.Equal(t, config.MailDriverLog, cfg.MailDriver)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.True(t, cfg.GetDeterministicIDs())
	assert.Equal(t, 9, cfg.GetRelayMaxAttempts())
	assert.True(t, cfg.Debug)

	raw := cfg.Raw()
	assert.NotContains(t, raw, "smtp_password")
	assert.NotContains(t, raw, "captcha_answer")
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{name: "unparsable duration", environ: map[string]string{"BANANABIT_TOKEN_TTL": "forever"}},
		{name: "unknown mail driver", environ: map[string]string{"BANANABIT_MAIL_DRIVER": "pigeon"}},
		{name: "bad base url", environ: map[string]string{"BANANABIT_BASE_URL": "not a url"}},
		{name: "bad from email", environ: map[string]string{"BANANABIT_FROM_EMAIL": "nobody"}},
		{name: "port out of range", environ: map[string]string{"BANANABIT_SMTP_PORT": "70000"}},
		{name: "no attempts", environ: map[string]string{"BANANABIT_RELAY_MAX_ATTEMPTS": "0"}},
		{name: "zero token ttl", environ: map[string]string{"BANANABIT_TOKEN_TTL": "0s"}},
		{name: "zero relay interval", environ: map[string]string{"BANANABIT_RELAY_INTERVAL": "0s"}},
		{name: "zero shutdown timeout", environ: map[string]string{"BANANABIT_SHUTDOWN_TIMEOUT": "0s"}},
		{name: "zero email timeout", environ: map[string]string{"BANANABIT_EMAIL_TIMEOUT": "0s"}},
		{name: "zero smtp port", environ: map[string]string{"BANANABIT_SMTP_PORT": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFrom(tt.environ)
			assert.Error(t, err)
		})
	}
}
