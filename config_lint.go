package finauth

import "time"

// ConfigWarning is a non-fatal configuration finding.
type ConfigWarning struct {
	Code    string
	Message string
}

// ConfigWarnings is the result of [Config.Lint].
type ConfigWarnings []ConfigWarning

// Codes returns the warning codes in order.
func (ws ConfigWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but risky. It never fails; call
// Validate for hard errors.
func (c Config) Lint() ConfigWarnings {
	var ws ConfigWarnings
	add := func(code, msg string) {
		ws = append(ws, ConfigWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT Leeway above 1m widens the replay window of expired access tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "JWT AccessTTL above 15m keeps revoked sessions usable longer")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "JWT RefreshTTL above 30d")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_shared_secret", "hs256 shares the signing secret with every verifier; prefer ed25519 when tokens leave the process")
	}
	if c.EmailVerification.ResendCooldown == 0 {
		add("resend_cooldown_disabled", "verification mail resend has no cooldown")
	}
	if c.PasswordReset.MaxRequests == 0 {
		add("reset_throttle_disabled", "password reset requests are not throttled per email")
	}
	if c.PasswordReset.ResetTTL > c.EmailVerification.VerificationTTL {
		add("reset_ttl_long", "PasswordReset ResetTTL exceeds the verification TTL")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are discarded")
	}
	if !c.ProductionMode {
		add("tokens_exposed", "non-production mode returns raw verification and reset tokens in results")
	}

	return ws
}
