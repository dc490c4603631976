package httpapi

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/middleware"
)

const msgInvalidRefreshToken = "invalid refresh token"

var errBadBody = errors.New("request body must be a JSON object")

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch finauth.KindOf(err) {
	case finauth.KindValidation:
		return http.StatusBadRequest
	case finauth.KindConflict:
		return http.StatusConflict
	case finauth.KindUnauthorized:
		return http.StatusUnauthorized
	case finauth.KindForbidden:
		return http.StatusForbidden
	case finauth.KindNotFound:
		return http.StatusNotFound
	case finauth.KindRateLimited:
		return http.StatusTooManyRequests
	}
	if errors.Is(err, finauth.ErrStoreUnavailable) || errors.Is(err, finauth.ErrEngineNotReady) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": message}. Internal failures are
// logged and replaced by a generic message.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	switch status {
	case http.StatusTooManyRequests:
		if d, ok := finauth.RetryAfter(err); ok {
			sec := int(math.Ceil(d.Seconds()))
			if sec < 1 {
				sec = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(sec))
		}
		msg = finauth.ErrVerificationCooldown.Error()
	case http.StatusServiceUnavailable:
		h.logger.ErrorContext(r.Context(), "auth backend unavailable",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		msg = "service unavailable"
	case http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		msg = "internal server error"
	}

	middleware.WriteError(w, status, msg)
}

// writeRefreshError hides which refresh anomaly occurred from the caller.
func (h *handler) writeRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	switch finauth.KindOf(err) {
	case finauth.KindUnauthorized, finauth.KindValidation:
		middleware.WriteError(w, http.StatusUnauthorized, msgInvalidRefreshToken)
	default:
		h.writeError(w, r, err)
	}
}
