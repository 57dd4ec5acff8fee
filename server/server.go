package server

import (
	"net/http"

	"github.com/oidcware/go-id-server/authz"
	"github.com/oidcware/go-id-server/clients"
	"github.com/oidcware/go-id-server/internal/config"
	"github.com/oidcware/go-id-server/sessions"
	"github.com/oidcware/go-id-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sessionCookieName = "gid_session"

// Deps holds the collaborators the HTTP layer wires together.
type Deps struct {
	Auth     *authz.AuthorizationService
	Registry *clients.Registry
	Sessions *sessions.Authenticator
	Keys     *token.KeySet
}

type Server struct {
	env    string // Environment (e.g., "DEV", "production")
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Deps
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("[Server.New] authorization service is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("[Server.New] client registry is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[Server.New] session authenticator is required")
	}
	if deps.Keys == nil {
		return nil, errors.New("[Server.New] key set is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		deps:   deps,
		env:    cfg.GetEnv(),
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	// Login & consent challenges
	s.RegisterRouteFunc("GET "+RouteLogin, s.LoginPageHandler())
	s.RegisterRouteFunc("POST "+RouteAuthLogin, s.LoginSubmissionHandler())
	s.RegisterRouteFunc("GET "+RouteAuthConsent, s.ConsentPageHandler())
	s.RegisterRouteFunc("POST "+RouteAuthConsent, s.ConsentSubmissionHandler())
	s.RegisterRouteFunc("GET "+RouteAuthLogout, s.LogoutHandler())

	// OAuth2 / OIDC endpoints
	s.RegisterRouteFunc("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered")
	}
}

// currentSession resolves the request's session cookie to a live
// session. Missing and expired cookies both come back nil.
func (s *Server) currentSession(r *http.Request) *sessions.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	session, err := s.deps.Sessions.Current(cookie.Value)
	if err != nil {
		return nil
	}
	return session
}

// setSessionCookie binds the browser to an established session. The
// cookie expires with the browser context unless the session is
// persistent ("remember me").
func (s *Server) setSessionCookie(w http.ResponseWriter, session *sessions.Session) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if session.Persistent {
		cookie.Expires = session.ExpiresAt
	}
	http.SetCookie(w, cookie)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
