package auth

import (
	"crypto/subtle"
	"strings"
)

const (
	DefaultCaptchaQuestion = "Who's bananabit?"
	DefaultCaptchaAnswer   = "a cool dude"
)

// Captcha is the fixed human check asked at registration.
type Captcha struct {
	Question string
	answer   string
}

// NewCaptcha returns a challenge with the given question and answer. Empty
// values fall back to the defaults.
func NewCaptcha(question, answer string) Captcha {
	if strings.TrimSpace(question) == "" {
		question = DefaultCaptchaQuestion
	}
	if strings.TrimSpace(answer) == "" {
		answer = DefaultCaptchaAnswer
	}
	return Captcha{Question: question, answer: normalizeAnswer(answer)}
}

// Check compares the trimmed, lower cased answer in constant time.
func (c Captcha) Check(answer string) bool {
	given := normalizeAnswer(answer)
	return subtle.ConstantTimeCompare([]byte(given), []byte(c.answer)) == 1
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
