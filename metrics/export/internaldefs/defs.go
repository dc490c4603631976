package internaldefs

import (
	"github.com/MrEthical07/finauth"
)

// CounterDef names one engine counter for exporters. Name is the Prometheus
// series; Operation and Outcome label the counter in attribute-based
// exporters.
type CounterDef struct {
	ID        finauth.MetricID
	Name      string
	Help      string
	Operation string
	Outcome   string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID        finauth.MetricID
	Name      string
	Help      string
	Operation string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: finauth.MetricSignUpSuccess, Name: "finauth_signup_success_total", Help: "Completed sign-ups.", Operation: "signup", Outcome: "success"},
	{ID: finauth.MetricSignUpFailure, Name: "finauth_signup_failure_total", Help: "Sign-ups rejected by validation or backend failure.", Operation: "signup", Outcome: "failure"},
	{ID: finauth.MetricSignUpDuplicate, Name: "finauth_signup_duplicate_total", Help: "Sign-ups rejected because the email is registered.", Operation: "signup", Outcome: "duplicate"},
	{ID: finauth.MetricSignInSuccess, Name: "finauth_signin_success_total", Help: "Successful sign-ins.", Operation: "signin", Outcome: "success"},
	{ID: finauth.MetricSignInFailure, Name: "finauth_signin_failure_total", Help: "Failed sign-ins.", Operation: "signin", Outcome: "failure"},
	{ID: finauth.MetricRefreshSuccess, Name: "finauth_refresh_success_total", Help: "Successful refresh token rotations.", Operation: "refresh", Outcome: "success"},
	{ID: finauth.MetricRefreshFailure, Name: "finauth_refresh_failure_total", Help: "Rejected refresh attempts.", Operation: "refresh", Outcome: "failure"},
	{ID: finauth.MetricRefreshReuseDetected, Name: "finauth_refresh_reuse_detected_total", Help: "Refresh secret mismatches that revoked a session.", Operation: "refresh", Outcome: "reuse_detected"},
	{ID: finauth.MetricEmailVerificationRequest, Name: "finauth_email_verification_request_total", Help: "Verification tokens minted by resend.", Operation: "email_verification", Outcome: "request"},
	{ID: finauth.MetricEmailVerificationSuccess, Name: "finauth_email_verification_success_total", Help: "Successful or replayed email verifications.", Operation: "email_verification", Outcome: "success"},
	{ID: finauth.MetricEmailVerificationFailure, Name: "finauth_email_verification_failure_total", Help: "Failed email verifications.", Operation: "email_verification", Outcome: "failure"},
	{ID: finauth.MetricPasswordResetRequest, Name: "finauth_password_reset_request_total", Help: "Reset tokens minted.", Operation: "password_reset", Outcome: "request"},
	{ID: finauth.MetricPasswordResetConfirmSuccess, Name: "finauth_password_reset_confirm_success_total", Help: "Completed password resets.", Operation: "password_reset", Outcome: "success"},
	{ID: finauth.MetricPasswordResetConfirmFailure, Name: "finauth_password_reset_confirm_failure_total", Help: "Rejected password resets.", Operation: "password_reset", Outcome: "failure"},
	{ID: finauth.MetricSessionRevoked, Name: "finauth_session_revoked_total", Help: "Sessions revoked by their owner.", Operation: "session", Outcome: "revoked"},
	{ID: finauth.MetricAuthenticateSuccess, Name: "finauth_authenticate_success_total", Help: "Accepted access tokens.", Operation: "authenticate", Outcome: "success"},
	{ID: finauth.MetricAuthenticateFailure, Name: "finauth_authenticate_failure_total", Help: "Rejected access tokens.", Operation: "authenticate", Outcome: "failure"},
	{ID: finauth.MetricRateLimitHit, Name: "finauth_rate_limit_hit_total", Help: "Requests denied by a limiter or cooldown.", Operation: "rate_limit", Outcome: "hit"},
	{ID: finauth.MetricMailDelivered, Name: "finauth_mail_delivered_total", Help: "Mails accepted by the mailer.", Operation: "mail", Outcome: "delivered"},
	{ID: finauth.MetricMailFailed, Name: "finauth_mail_failed_total", Help: "Mails the mailer failed to deliver.", Operation: "mail", Outcome: "failed"},
	{ID: finauth.MetricAuditDropped, Name: "finauth_audit_dropped_total", Help: "Audit events discarded because the dispatcher queue was full.", Operation: "audit", Outcome: "dropped"},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: finauth.MetricSignInLatency, Name: "finauth_signin_latency_seconds", Help: "Sign-in latency histogram.", Operation: "signin"},
	{ID: finauth.MetricRefreshLatency, Name: "finauth_refresh_latency_seconds", Help: "Refresh latency histogram.", Operation: "refresh"},
}

// HistogramUpperBounds are the bucket upper bounds in seconds; the last
// bucket is +Inf and is not listed.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
