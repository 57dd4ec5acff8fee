package server

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Views are deliberately minimal: just enough markup to carry the login
// and consent challenges and to render direct errors.
var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "error"}}<!DOCTYPE html>
<html><head><title>Error</title></head><body>
<h1>Authorization error</h1>
<p>{{.Message}}</p>
</body></html>{{end}}

{{define "login"}}<!DOCTYPE html>
<html><head><title>Login</title></head><body>
<h1>Sign in</h1>
{{if .Failed}}<p>Invalid username or password.</p>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<label>Username <input type="text" name="username"></label>
<label>Password <input type="password" name="password"></label>
<label><input type="checkbox" name="remember_me" value="true"> Remember me</label>
<button type="submit">Login</button>
</form>
</body></html>{{end}}

{{define "consent"}}<!DOCTYPE html>
<html><head><title>Consent</title></head><body>
<h1>{{.ClientName}} requests access</h1>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
<form method="post" action="{{.Action}}">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<label><input type="checkbox" name="remember_consent" value="true"> Remember my decision</label>
<button type="submit" name="decision" value="grant">Allow</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body></html>{{end}}
`))

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		log.Err(err).Str("template", name).Msg("render failed")
	}
}
