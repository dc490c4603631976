package httpapi

import (
	"time"

	"github.com/MrEthical07/finauth"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type userResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type sessionResponse struct {
	User                   userResponse   `json:"user"`
	Tokens                 tokensResponse `json:"tokens"`
	HouseholdID            string         `json:"householdId,omitempty"`
	EmailVerificationToken string         `json:"emailVerificationToken,omitempty"`
}

type verifyResponse struct {
	OK       bool   `json:"ok"`
	Verified bool   `json:"verified"`
	Reused   bool   `json:"reused,omitempty"`
	Message  string `json:"message,omitempty"`
}

type resendResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token,omitempty"`
}

type forgotResponse struct {
	Sent  bool   `json:"sent"`
	Token string `json:"token,omitempty"`
}

type resetResponse struct {
	Reset bool `json:"reset"`
}

type activeSession struct {
	ID        string    `json:"id"`
	UserAgent *string   `json:"userAgent"`
	IP        *string   `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
	Current   bool      `json:"current"`
}

type revokeResponse struct {
	Revoked bool `json:"revoked"`
}

func toUser(v finauth.UserView) userResponse {
	return userResponse{
		ID:              v.ID,
		Email:           v.Email,
		Name:            v.Name,
		EmailVerified:   v.EmailVerified,
		EmailVerifiedAt: v.EmailVerifiedAt,
		CreatedAt:       v.CreatedAt,
	}
}

func toTokens(p finauth.TokenPair, accessTTL time.Duration) tokensResponse {
	return tokensResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    int64(accessTTL / time.Second),
	}
}

func toSessions(in []finauth.SessionSummary) []activeSession {
	out := make([]activeSession, 0, len(in))
	for _, s := range in {
		out = append(out, activeSession{
			ID:        s.ID,
			UserAgent: optional(s.UserAgent),
			IP:        optional(s.IP),
			CreatedAt: s.CreatedAt,
			LastSeen:  s.LastSeen,
			Current:   s.Current,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
