package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// validReturnURL accepts only local re-entries into the authorization
// endpoint. Anything else would let the login form be used as a
// redirector.
func validReturnURL(returnURL string) bool {
	return strings.HasPrefix(returnURL, RouteOAuth2Authorize)
}

// LoginPageHandler renders the login challenge. The original
// authorization parameters ride along in return_url, not in server
// memory, so a failed attempt loses nothing.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := r.URL.Query().Get("return_url")
		if !validReturnURL(returnURL) {
			renderPage(w, http.StatusBadRequest, "error", map[string]any{
				"Message": "Invalid return URL.",
			})
			return
		}

		renderPage(w, http.StatusOK, "login", map[string]any{
			"Action":    RouteAuthLogin,
			"ReturnURL": returnURL,
			"Failed":    r.URL.Query().Get("failed") != "",
		})
	}
}

// LoginSubmissionHandler checks the submitted credentials. Failure
// re-renders the login challenge with a generic message - the response
// never reveals which of username or password was wrong.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		returnURL := r.FormValue("return_url")
		if !validReturnURL(returnURL) {
			renderPage(w, http.StatusBadRequest, "error", map[string]any{
				"Message": "Invalid return URL.",
			})
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")
		rememberMe := r.FormValue("remember_me") == "true"

		user, err := s.deps.Auth.Login(username, password)
		if err != nil {
			log.Info().Str("username", username).Msg("login failed")
			target := RouteLogin + "?failed=1&return_url=" + url.QueryEscape(returnURL)
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		session := s.deps.Sessions.Establish(user.Subject, rememberMe)
		s.setSessionCookie(w, session)
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
	}
}

// LogoutHandler destroys the browser session. When the request names a
// registered post-logout redirect URI the user agent is sent there,
// otherwise a plain confirmation renders.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			s.deps.Sessions.Destroy(cookie.Value)
		}
		s.clearSessionCookie(w)

		postLogout := r.URL.Query().Get("post_logout_redirect_uri")
		if postLogout != "" {
			for _, client := range s.deps.Registry.List() {
				if client.AllowsPostLogoutRedirectURI(postLogout) {
					http.Redirect(w, r, postLogout, http.StatusSeeOther)
					return
				}
			}
		}

		renderPage(w, http.StatusOK, "error", map[string]any{
			"Message": "You have been signed out.",
		})
	}
}
