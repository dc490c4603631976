package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/middleware"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 16

type handler struct {
	engine *finauth.Engine
	logger *slog.Logger
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, errBadBody.Error())
		return false
	}
	return true
}

func principal(w http.ResponseWriter, r *http.Request) (*finauth.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

func (h *handler) accessTTL() time.Duration {
	return h.engine.Config().JWT.AccessTTL
}

// Health reports 200 when the record store answers.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) (*finauth.SignUpResult, bool) {
	var req signUpRequest
	if !decode(w, r, &req) {
		return nil, false
	}
	res, err := h.engine.SignUp(r.Context(), finauth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, finauth.RequestMeta{})
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return res, true
}

// SignUp creates the account and returns the first session.
func (h *handler) SignUp(w http.ResponseWriter, r *http.Request) {
	res, ok := h.signUp(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, sessionResponse{
		User:                   toUser(res.User),
		Tokens:                 toTokens(res.Tokens, h.accessTTL()),
		HouseholdID:            res.HouseholdID,
		EmailVerificationToken: res.VerificationToken,
	})
}

// Register is SignUp returning only the user.
func (h *handler) Register(w http.ResponseWriter, r *http.Request) {
	res, ok := h.signUp(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toUser(res.User))
}

func (h *handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.SignIn(r.Context(), finauth.SignInInput{
		Email:    req.Email,
		Password: req.Password,
	}, finauth.RequestMeta{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessionResponse{
		User:   toUser(res.User),
		Tokens: toTokens(res.Tokens, h.accessTTL()),
	})
}

func (h *handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken, finauth.RequestMeta{})
	if err != nil {
		h.writeRefreshError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toTokens(*pair, h.accessTTL()))
}

// VerifyEmail consumes a verification token for the signed-in user.
func (h *handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.VerifyEmail(r.Context(), p.UserID, req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, verifyResponse{OK: res.Verified, Verified: res.Verified, Reused: res.Reused})
}

// VerifyEmailToken serves the link from the verification mail.
func (h *handler) VerifyEmailToken(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		middleware.WriteJSON(w, http.StatusOK, verifyResponse{Message: "Missing token"})
		return
	}
	res, err := h.engine.VerifyEmailToken(r.Context(), tok)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, verifyResponse{OK: res.Verified, Verified: res.Verified, Reused: res.Reused})
}

func (h *handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := h.engine.ResendVerification(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resendResponse{OK: res.Sent, Token: res.Token})
}

// ForgotPassword always answers {sent: true} for a well-formed request.
func (h *handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, forgotResponse{Sent: res.Sent, Token: res.Token})
}

func (h *handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resetResponse{Reset: res.Reset})
}

func (h *handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sessions, err := h.engine.ListSessions(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSessions(sessions))
}

func (h *handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := h.engine.RevokeSession(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, revokeResponse{Revoked: res.Revoked})
}

func (h *handler) SignOut(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.engine.SignOut(r.Context(), *p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	u, err := h.engine.Me(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toUser(*u))
}
