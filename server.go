package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

// Server holds the state shared by the HTTP handlers.
type Server struct {
	config       *Config
	sessionStore sessions.Store
	limiter      *rate.Limiter
}

func newServer(cfg *Config, store sessions.Store) *Server {
	return &Server{
		config:       cfg,
		sessionStore: store,
		limiter:      rate.NewLimiter(rate.Limit(cfg.PKCERate), cfg.PKCEBurst),
	}
}

// newCookieStore returns the store used for both the login session and the
// gothic provider session.
func newCookieStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Path = "/"
	return store
}

// routes mounts the PKCE endpoint, the login flow when enabled, every catalog
// and the index.
func (s *Server) routes(catalogs []*Catalog, logOut io.Writer) http.Handler {
	public := newLoggingChain(logOut)
	private := public.Append(s.requireAuth)

	r := mux.NewRouter()
	r.StrictSlash(true)

	r.Handle("/auth/pkce", public.Then(s.pkcePair())).Methods("GET")

	if s.config.LoginEnabled() {
		r.Handle("/auth/login", public.Then(s.authLogin())).Methods("GET")
		r.Handle("/auth/callback", public.Then(s.authCallback())).Methods("GET")
		r.Handle("/auth/logout", public.Then(s.authLogout())).Methods("GET")
	}

	for _, catalog := range catalogs {
		chain := private
		if catalog.Public {
			chain = public
		}
		mountCatalog(r, chain, catalog)
	}

	r.Handle("/", public.Then(s.index(catalogs))).Methods("GET")

	return r
}

func mountCatalog(r *mux.Router, chain alice.Chain, catalog *Catalog) {
	prefix := "/" + catalog.Slug + "/"
	r.Methods("GET", "HEAD").PathPrefix(prefix).Handler(chain.Then(catalog))
}

type indexEntry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Public bool   `json:"public"`
}

type indexData struct {
	Catalogs []indexEntry `json:"catalogs"`
	User     string       `json:"user,omitempty"`
	Login    bool         `json:"login"`
}

func (s *Server) index(catalogs []*Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// return 404 if not the root
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		data := &indexData{
			Catalogs: make([]indexEntry, 0, len(catalogs)),
			Login:    s.config.LoginEnabled(),
		}
		for _, c := range catalogs {
			data.Catalogs = append(data.Catalogs, indexEntry{
				Name:   c.Name,
				Path:   "/" + c.Slug + "/",
				Public: c.Public,
			})
		}

		session, _ := s.sessionStore.Get(r, sessionName)
		if email, ok := session.Values["current_user_email"].(string); ok {
			data.User = email
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			hlog.FromRequest(r).Error().Err(err).Send()
		}
	}
}
