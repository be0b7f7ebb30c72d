package api

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// consentPageHTML is the static result page shown to the tenant
// administrator after the consent redirect.
const consentPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { font-family: system-ui, sans-serif; background: #f3f4f6; margin: 0;
         display: flex; align-items: center; justify-content: center; min-height: 100vh; }
  .card { background: #fff; border-radius: 8px; padding: 2.5rem 3rem; max-width: 28rem;
          box-shadow: 0 1px 4px rgba(0,0,0,.12); text-align: center; }
  .ok   { color: #15803d; }
  .err  { color: #b91c1c; }
  p     { color: #374151; }
  small { color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <h1 class="{{if .Success}}ok{{else}}err{{end}}">{{.Title}}</h1>
    <p>{{.Detail}}</p>
    {{if .TenantDomain}}<small>Tenant: {{.TenantDomain}}</small>{{end}}
    <p><small>You can close this window.</small></p>
  </div>
</body>
</html>
`

var consentPageTmpl = template.Must(template.New("consent").Parse(consentPageHTML))

type consentPageData struct {
	Success      bool
	Title        string
	Detail       string
	TenantDomain string
}

// renderConsentPage writes the HTML result page for a browser-facing
// consent callback
func (s *RESTServer) renderConsentPage(w http.ResponseWriter, result consentResult) {
	data := consentPageData{
		Success: result.Success,
		Title:   result.Title,
		Detail:  result.Detail,
	}
	if result.Customer != nil {
		data.TenantDomain = result.Customer.TenantDomain
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(result.Status)
	if err := consentPageTmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render consent page")
	}
}
