package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/markbates/goth/gothic"
	"github.com/moodring/authbootstrap/pkce"
	"github.com/rs/zerolog/hlog"
)

const sessionName = "_authboot_session"

func (s *Server) authLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gothic.BeginAuthHandler(w, r)
	}
}

func (s *Server) authCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := gothic.CompleteUserAuth(w, r)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("completing login")
			http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
			return
		}

		store := map[string]string{
			"current_user_id":    user.UserID,
			"current_user_email": user.Email,
			"current_user_name":  user.Name,
		}

		session, _ := s.sessionStore.New(r, sessionName)
		for key, val := range store {
			session.Values[key] = val
		}

		redirectTo := "/"
		if val, ok := session.Values["redirect_to"].(string); ok {
			delete(session.Values, "redirect_to")
			redirectTo = val
		}

		if err = session.Save(r, w); err != nil {
			hlog.FromRequest(r).Error().Err(err).Send()
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, redirectTo, http.StatusFound)
	}
}

func (s *Server) authLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gothic.Logout(w, r); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("clearing provider session")
		}

		session, err := s.sessionStore.Get(r, sessionName)
		if err != nil {
			// an undecodable cookie is replaced below
			hlog.FromRequest(r).Warn().Err(err).Send()
		}
		session.Options.MaxAge = -1
		session.Values = make(map[interface{}]interface{})
		if err = session.Save(r, w); err != nil {
			hlog.FromRequest(r).Error().Err(err).Send()
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// requireAuth rejects requests without a logged-in user. Browsers are sent to
// the login page and come back to the original URL afterwards.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := s.sessionStore.Get(r, sessionName)
		if _, ok := session.Values["current_user_id"]; ok {
			next.ServeHTTP(w, r)
			return
		}

		if !s.config.LoginEnabled() || !strings.Contains(r.Header.Get("Accept"), "text/html") {
			http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
			return
		}

		session.Values["redirect_to"] = r.URL.String()
		if err := session.Save(r, w); err != nil {
			hlog.FromRequest(r).Error().Err(err).Send()
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusFound)
	})
}

// pkcePair hands a fresh verifier and challenge to a client that drives the
// authorization redirect itself. The response must not be cached or logged.
func (s *Server) pkcePair() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
			return
		}

		pair, err := pkce.NewPair(s.config.VerifierLength)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("generating pkce pair")
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		if err := json.NewEncoder(w).Encode(pair); err != nil {
			hlog.FromRequest(r).Error().Err(err).Send()
		}
	}
}
