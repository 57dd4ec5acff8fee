package server

import (
	"net/http"
	"net/url"

	"github.com/oidcware/go-id-server/authz"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// consentContext re-derives the authorization request behind a consent
// challenge from its return_url, validating the client and redirect URI
// again before anything is shown or redirected.
func (s *Server) consentContext(returnURL string) (*authz.AuthorizationParameters, string, error) {
	if !validReturnURL(returnURL) {
		return nil, "", errors.New("[consentContext] invalid return URL")
	}

	parsed, err := url.Parse(returnURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "[consentContext] parse return URL")
	}
	params := authz.ParseAuthorizationParameters(parsed.Query())

	client, err := s.deps.Registry.Get(params.ClientID)
	if err != nil {
		return nil, "", errors.Wrap(err, "[consentContext] registry lookup")
	}
	if !client.AllowsRedirectURI(params.RedirectURI) {
		return nil, "", errors.New("[consentContext] redirect URI not registered")
	}
	return params, client.Description, nil
}

// ConsentPageHandler renders the consent challenge listing the
// requested scopes.
func (s *Server) ConsentPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := r.URL.Query().Get("return_url")
		params, clientName, err := s.consentContext(returnURL)
		if err != nil {
			renderPage(w, http.StatusBadRequest, "error", map[string]any{
				"Message": "Invalid consent request.",
			})
			return
		}

		if s.currentSession(r) == nil {
			target := RouteLogin + "?return_url=" + url.QueryEscape(returnURL)
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		if clientName == "" {
			clientName = params.ClientID
		}
		renderPage(w, http.StatusOK, "consent", map[string]any{
			"Action":     RouteAuthConsent,
			"ReturnURL":  returnURL,
			"ClientName": clientName,
			"Scopes":     params.Scopes(),
		})
	}
}

// ConsentSubmissionHandler records the consent decision. Granting
// upserts the ledger and re-enters the authorization endpoint through
// return_url; denying rejects the flow back to the client with
// access_denied.
func (s *Server) ConsentSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		returnURL := r.FormValue("return_url")
		params, _, err := s.consentContext(returnURL)
		if err != nil {
			renderPage(w, http.StatusBadRequest, "error", map[string]any{
				"Message": "Invalid consent request.",
			})
			return
		}

		session := s.currentSession(r)
		if session == nil {
			target := RouteLogin + "?return_url=" + url.QueryEscape(returnURL)
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		granted := r.FormValue("decision") == "grant"
		remember := r.FormValue("remember_consent") == "true"

		err = s.deps.Auth.Consent(session.Subject, params.ClientID, params.Scopes(), granted, remember)
		if errors.Is(err, authz.ErrAccessDenied) {
			values := url.Values{}
			values.Set("error", "access_denied")
			if params.State != "" {
				values.Set("state", params.State)
			}
			target, buildErr := buildCallbackURL(params.RedirectURI, params.ResponseMode(), values)
			if buildErr != nil {
				renderPage(w, http.StatusBadRequest, "error", map[string]any{
					"Message": "Invalid consent request.",
				})
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		if err != nil {
			log.Err(err).Msg("consent grant failed")
			http.Error(w, "Failed to record consent", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, returnURL, http.StatusSeeOther)
	}
}
