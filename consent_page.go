package oauth

import (
	"bytes"
	"html/template"
	"net/http"
)

// consentPageData is rendered into hidden fields and resubmitted verbatim.
// html/template escapes every value for its attribute context.
type consentPageData struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string
	ConsentToken  string
	Scope         string
	Resource      string
	Action        string
}

var consentPageTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authorize {{.ClientID}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #f5f5f7; margin: 0; }
main { max-width: 28rem; margin: 4rem auto; background: #fff; padding: 2rem; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.1); }
h1 { font-size: 1.25rem; margin-top: 0; }
code { word-break: break-all; }
.actions { display: flex; gap: .75rem; margin-top: 1.5rem; }
button { flex: 1; padding: .6rem; font-size: 1rem; border-radius: 6px; border: 1px solid #ccc; cursor: pointer; }
button.approve { background: #1a7f37; border-color: #1a7f37; color: #fff; }
</style>
</head>
<body>
<main>
<h1>Authorize access</h1>
<p><strong>{{.ClientID}}</strong> is requesting access to <code>{{.Resource}}</code> with scope <code>{{.Scope}}</code>.</p>
<p>After your decision you will be redirected to <code>{{.RedirectURI}}</code>.</p>
<form method="post" action="{{.Action}}">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="consent_token" value="{{.ConsentToken}}">
<div class="actions">
<button type="submit" name="action" value="deny">Deny</button>
<button type="submit" name="action" value="approve" class="approve">Approve</button>
</div>
</form>
</main>
</body>
</html>
`))

// renderConsentPage buffers the page so a template error never yields a partial 200
func renderConsentPage(w http.ResponseWriter, data consentPageData) error {
	var buf bytes.Buffer
	if err := consentPageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
