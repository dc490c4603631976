package token

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformed is returned by Parse when the input is not a two-part
// "{id}.{secret}" string.
var ErrMalformed = errors.New("malformed token")

const separator = "."

// Compose joins a record id and its raw secret into the opaque wire form.
func Compose(id, secret string) string {
	return id + separator + secret
}

// Parse splits an opaque token into its record id and raw secret. It does not
// authenticate the secret; callers compare it against the stored hash of the
// record located by id.
func Parse(tok string) (id string, secret string, err error) {
	parts := strings.Split(tok, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformed
	}
	return parts[0], parts[1], nil
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// NewSecret returns 128 bits of crypto/rand entropy as 32 lowercase hex
// characters (a version 4 UUID without hyphens).
func NewSecret() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}
