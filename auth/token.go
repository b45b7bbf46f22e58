package auth

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const tokenBytes = 32

// TokenSource generates verification token values.
type TokenSource func() (string, error)

// RandomToken returns 32 bytes from crypto/rand encoded as unpadded base64url.
func RandomToken() (string, error) {
	return readToken(rand.Reader)
}

func readToken(r io.Reader) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewVerificationToken issues a token for accountID valid for ttl from now.
func NewVerificationToken(value string, accountID uuid.UUID, now time.Time, ttl time.Duration) *VerificationToken {
	return &VerificationToken{
		Value:     value,
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}
