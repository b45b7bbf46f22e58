package auth

import "time"

const (
	DefaultBaseURL          = "http://localhost:8080"
	DefaultTokenTTL         = 24 * time.Hour
	DefaultEmailTimeout     = 10 * time.Second
	DefaultRelayInterval    = 30 * time.Second
	DefaultRelayMaxAttempts = 5
)

// Config holds the auth extension settings.
type Config interface {
	GetBaseURL() string
	GetTokenTTL() time.Duration
	GetEmailTimeout() time.Duration
	GetCaptchaQuestion() string
	GetCaptchaAnswer() string
	GetDeterministicIDs() bool
	GetRelayInterval() time.Duration
	GetRelayMaxAttempts() int
}

// Settings is a plain Config implementation. Zero values use the defaults.
type Settings struct {
	BaseURL          string
	TokenTTL         time.Duration
	EmailTimeout     time.Duration
	CaptchaQuestion  string
	CaptchaAnswer    string
	DeterministicIDs bool
	RelayInterval    time.Duration
	RelayMaxAttempts int
}

var _ Config = Settings{}

func (s Settings) GetBaseURL() string {
	if s.BaseURL == "" {
		return DefaultBaseURL
	}
	return s.BaseURL
}

func (s Settings) GetTokenTTL() time.Duration {
	return durationOr(s.TokenTTL, DefaultTokenTTL)
}

func (s Settings) GetEmailTimeout() time.Duration {
	return durationOr(s.EmailTimeout, DefaultEmailTimeout)
}

func (s Settings) GetCaptchaQuestion() string {
	if s.CaptchaQuestion == "" {
		return DefaultCaptchaQuestion
	}
	return s.CaptchaQuestion
}

func (s Settings) GetCaptchaAnswer() string {
	if s.CaptchaAnswer == "" {
		return DefaultCaptchaAnswer
	}
	return s.CaptchaAnswer
}

func (s Settings) GetDeterministicIDs() bool {
	return s.DeterministicIDs
}

func (s Settings) GetRelayInterval() time.Duration {
	return durationOr(s.RelayInterval, DefaultRelayInterval)
}

func (s Settings) GetRelayMaxAttempts() int {
	if s.RelayMaxAttempts <= 0 {
		return DefaultRelayMaxAttempts
	}
	return s.RelayMaxAttempts
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
