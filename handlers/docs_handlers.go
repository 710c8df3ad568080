package handlers

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/config"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/pipeline"
	"github.com/sheetform/SheetForm/spam"
)

var docsTmpl = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>API docs — {{.FormTitle}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 760px; margin: 40px auto; padding: 0 16px; color: #111827; }
code, pre { background: #f3f4f6; border-radius: 4px; }
code { padding: 2px 5px; }
pre { padding: 12px; overflow-x: auto; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #e5e7eb; padding: 6px 10px; text-align: left; }
.badge { display: inline-block; background: #2563eb; color: #fff; border-radius: 4px; padding: 2px 8px; font-size: 13px; }
</style>
</head>
<body>
<h1>{{.FormTitle}} — submission API</h1>
<p><span class="badge">POST</span> <code>{{.Endpoint}}</code></p>
<h2>Authentication</h2>
<p>Send the endpoint's API key as <code>Authorization: Bearer &lt;api_key&gt;</code> or <code>X-API-Key: &lt;api_key&gt;</code>.</p>
<h2>Example request</h2>
<pre>curl -X POST '{{.Endpoint}}' \
  -H 'Authorization: Bearer YOUR_API_KEY' \
  -H 'Content-Type: application/json' \
  -d '{{.ExampleBody}}'</pre>
{{if .CaptchaEnabled}}<p>CAPTCHA is enabled ({{.CaptchaType}}); include the provider response token under <code>{{.CaptchaField}}</code>.</p>{{end}}
<h2>Fields</h2>
<table>
<tr><th>Name</th><th>Label</th><th>Type</th><th>Required</th></tr>
{{range .Fields}}<tr><td><code>{{.Name}}</code></td><td>{{.Label}}</td><td>{{.Type}}</td><td>{{if .Required}}yes{{else}}no{{end}}</td></tr>{{end}}
</table>
{{if .Mapping}}
<h2>Field mapping</h2>
<p>These payload keys are renamed before validation and storage:</p>
<table>
<tr><th>Send as</th><th>Stored as</th></tr>
{{range .Mapping}}<tr><td><code>{{.From}}</code></td><td><code>{{.To}}</code></td></tr>{{end}}
</table>
{{end}}
<h2>Response</h2>
<pre>{
  "success": true,
  "message": "...",
  "data": { ... },
  "sheet_status": { "written": true, "error": null }
}</pre>
<p><code>sheet_status</code> reports the spreadsheet mirror independently of acceptance: a stored submission answers 200 even when the sheet write fails.</p>
</body>
</html>`))

type docsPage struct {
	FormTitle      string
	Endpoint       string
	ExampleBody    string
	Fields         []models.FormField
	Mapping        []models.MappingEntry
	CaptchaEnabled bool
	CaptchaType    string
	CaptchaField   string
}

// APIDocs renders the human-readable documentation page for one
// endpoint. Read-only, no secrets.
func APIDocs(w http.ResponseWriter, r *http.Request) {
	resolver := &pipeline.Resolver{DB: db.DB}
	cfg, perr := resolver.ByHash(mux.Vars(r)["apiHash"])
	if perr != nil {
		http.Error(w, perr.Message, perr.Status())
		return
	}

	fields, _ := cfg.Form.FieldList()
	page := docsPage{
		FormTitle:      cfg.Form.Title,
		Endpoint:       config.BaseURL() + "/api/external/submit/" + cfg.APIHash,
		ExampleBody:    exampleBody(fields),
		Fields:         fields,
		Mapping:        cfg.MappingEntries(),
		CaptchaEnabled: cfg.CaptchaEnabled,
		CaptchaType:    cfg.CaptchaType,
		CaptchaField:   spam.TokenField(cfg.CaptchaType),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsTmpl.Execute(w, page); err != nil {
		http.Error(w, "Failed to render docs", http.StatusInternalServerError)
	}
}

func exampleBody(fields []models.FormField) string {
	body := `{`
	for i, f := range fields {
		if i > 0 {
			body += `, `
		}
		body += `"` + f.Name + `": "..."`
	}
	return body + `}`
}
