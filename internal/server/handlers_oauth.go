package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/benefits-notice/internal/model"
)

const (
	stateCookie = "oauthstate"
	stateTTL    = 10 * time.Minute
)

// oauthStart redirects to the provider's consent page. The random state
// and the target employer travel in a short-lived cookie.
func (s *Server) oauthStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Connector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "oauth_disabled", "mail connect is not configured")
		return
	}
	provider := model.MailProvider(chi.URLParam(r, "provider"))
	employerID := r.URL.Query().Get("employer_id")
	if employerID != "" {
		if _, err := s.deps.Store.GetEmployer(r.Context(), employerID); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	b := make([]byte, 16)
	_, _ = rand.Read(b)
	state := base64.RawURLEncoding.EncodeToString(b)

	u, err := s.deps.Connector.AuthCodeURL(provider, state)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state + "." + employerID,
		Path:     "/oauth/",
		Expires:  s.now().Add(stateTTL),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, u, http.StatusTemporaryRedirect)
}

func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Connector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "oauth_disabled", "mail connect is not configured")
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_state", "missing oauth state")
		return
	}
	state, employerID, _ := strings.Cut(cookie.Value, ".")
	if state == "" || r.URL.Query().Get("state") != state {
		writeError(w, r, http.StatusBadRequest, "invalid_state", "oauth state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/oauth/", MaxAge: -1})

	if msg := r.URL.Query().Get("error"); msg != "" {
		writeError(w, r, http.StatusBadRequest, "consent_denied", msg)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "missing authorization code")
		return
	}

	provider := model.MailProvider(chi.URLParam(r, "provider"))
	acct, err := s.deps.Connector.Complete(r.Context(), provider, employerID, code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, acct)
}
