package http

import (
	"context"
	"net/http"
	"strings"

	"scrivo/internal/tenant"
	"scrivo/internal/tokens"
)

const (
	sessionHeader = "X-Session-Id"
	sessionCookie = "scrivo_session"
)

type ctxKey int

const ownerKey ctxKey = iota

// withTenant resolves the request to exactly one identity: a verified
// account token, or an anonymous session. A request carrying neither is
// issued a fresh session id via cookie, so every anonymous caller works
// under a scoped identity from first contact. Identity is never upgraded.
func (h *Handler) withTenant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var owner tenant.Owner
		if bearer := bearerToken(r); bearer != "" {
			accountID, err := h.auth.ParseToken(bearer)
			if err != nil {
				h.respondError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			owner = tenant.AccountOwner(accountID)
		} else {
			sid := sessionID(r)
			if sid == "" {
				sid = tokens.GenerateSessionID()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookie,
					Value:    sid,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			owner = tenant.SessionOwner(sid)
		}

		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

func sessionID(r *http.Request) string {
	if sid := r.Header.Get(sessionHeader); sid != "" {
		return sid
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func ownerFrom(r *http.Request) tenant.Owner {
	if o, ok := r.Context().Value(ownerKey).(tenant.Owner); ok {
		return o
	}
	return tenant.Owner{}
}
