package flows

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

func (d Deps) validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", d.Errors.Validation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email is invalid", d.Errors.Validation)
	}
	return nil
}

func (d Deps) validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < d.Policy.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", d.Errors.Validation, d.Policy.MinPasswordLength)
	}
	if d.Policy.MaxPasswordBytes > 0 && len(pw) > d.Policy.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", d.Errors.Validation, d.Policy.MaxPasswordBytes)
	}
	return nil
}
