package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/oidcware/go-id-server/authz"
	"github.com/oidcware/go-id-server/clients"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetBaseURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"end_session_endpoint":   baseURL + RouteAuthLogout,

			"response_types_supported": []string{"code", "token", "id_token", "id_token token"},
			"response_modes_supported": []string{"query", "fragment"},
			"subject_types_supported":  []string{"public"},

			"id_token_signing_alg_values_supported": []string{"RS256"},

			"scopes_supported": s.supportedScopes(),

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_post",
				"none",
			},

			"grant_types_supported": []string{
				"implicit",
				"authorization_code",
				"client_credentials",
			},

			"claims_supported": []string{
				"sub",
				"email",
				"email_verified",
				"name",
				"given_name",
				"family_name",
				"preferred_username",
			},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens. Includes
// retired keys so tokens issued before a rotation stay verifiable.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.deps.Keys.JWKS()
		if err != nil {
			http.Error(w, "Failed to get JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Authorize begins the authorization flow
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := authz.ParseAuthorizationParameters(r.URL.Query())
		session := s.currentSession(r)
		returnURL := r.URL.RequestURI()

		loginRedirect := func(returnURL string) {
			target := RouteLogin + "?return_url=" + url.QueryEscape(returnURL)
			http.Redirect(w, r, target, http.StatusSeeOther)
		}

		consentRedirect := func(returnURL string, client *clients.Client, scopes []string) {
			target := RouteAuthConsent + "?return_url=" + url.QueryEscape(returnURL)
			http.Redirect(w, r, target, http.StatusSeeOther)
		}

		oauthRedirect := func(redirectURI string, responseMode authz.ResponseModeType, values url.Values) {
			target, err := buildCallbackURL(redirectURI, responseMode, values)
			if err != nil {
				http.Error(w, "Failed to redirect to client", http.StatusInternalServerError)
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		}

		if err := s.deps.Auth.Authorize(params, session, returnURL, loginRedirect, consentRedirect, oauthRedirect); err != nil {
			s.authorizeError(w, r, params, err)
		}
	}
}

// authorizeError routes a failed authorization to the right surface.
// Unknown clients and unverified redirect URIs get a direct error page:
// redirecting on those would make this server an open redirector. All
// other failures are propagated to the already-verified redirect URI.
func (s *Server) authorizeError(w http.ResponseWriter, r *http.Request, params *authz.AuthorizationParameters, err error) {
	log.Warn().Err(err).Str("client_id", params.ClientID).Msg("authorization rejected")

	if authz.RenderDirectly(err) {
		renderPage(w, http.StatusBadRequest, "error", map[string]any{
			"Message": "The authorization request is invalid.",
		})
		return
	}

	if errors.Is(err, authz.ErrExpiredSession) {
		s.clearSessionCookie(w)
		target := RouteLogin + "?return_url=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	values := url.Values{}
	values.Set("error", oauthErrorCode(err))
	if params.State != "" {
		values.Set("state", params.State)
	}
	target, buildErr := buildCallbackURL(params.RedirectURI, params.ResponseMode(), values)
	if buildErr != nil {
		renderPage(w, http.StatusBadRequest, "error", map[string]any{
			"Message": "The authorization request is invalid.",
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Token exchanges an authorization code or client credentials for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := authz.TokenRequest{
			GrantType:    clients.GrantType(r.FormValue("grant_type")),
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			Scope:        r.FormValue("scope"),
		}

		tokenResponse, err := s.deps.Auth.Token(tokenReq)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, authz.ErrSigningFailure) {
				status = http.StatusInternalServerError
			}
			writeJSONError(w, oauthErrorCode(err), "token request rejected", status)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// Helper functions

// buildCallbackURL appends the response values to the client's redirect
// URI, in the fragment for implicit responses or the query string for
// the code flow. The state value rides along in values verbatim.
func buildCallbackURL(callbackURI string, responseMode authz.ResponseModeType, values url.Values) (string, error) {
	u, err := url.Parse(callbackURI)
	if err != nil {
		return "", errors.Wrap(err, "[buildCallbackURL] invalid redirect URI")
	}

	switch responseMode {
	case authz.FragmentResponseMode:
		u.Fragment = ""
		return u.String() + "#" + values.Encode(), nil
	default:
		query := u.Query()
		for key, vals := range values {
			for _, v := range vals {
				query.Set(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// oauthErrorCode maps flow errors onto RFC 6749 error codes.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, authz.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, authz.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, authz.ErrUnauthorizedGrantType):
		return "unauthorized_client"
	case errors.Is(err, authz.ErrInvalidAuthorizationCode):
		return "invalid_grant"
	case errors.Is(err, authz.ErrInvalidClientSecret), errors.Is(err, authz.ErrUnknownClient):
		return "invalid_client"
	case errors.Is(err, authz.ErrSigningFailure):
		return "server_error"
	default:
		return "invalid_request"
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, status int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func (s *Server) supportedScopes() []string {
	seen := map[string]struct{}{}
	scopes := []string{}
	for _, client := range s.deps.Registry.List() {
		for _, scope := range client.Scopes {
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
