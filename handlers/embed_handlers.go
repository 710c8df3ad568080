package handlers

import (
	"html/template"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/config"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/pipeline"
)

// Theme overrides come straight from the query string, so they are
// restricted to a safe CSS value charset.
var themeValue = regexp.MustCompile(`^[#a-zA-Z0-9 ,.%()'"-]+$`)

func themeParam(r *http.Request, name, fallback string) string {
	v := r.URL.Query().Get(name)
	if v == "" || !themeValue.MatchString(v) {
		return fallback
	}
	return v
}

var embedTmpl = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Form.Title}}</title>
<style>
body { margin: 0; padding: 16px; font-family: {{.Font}}; background: {{.Background}}; color: {{.Text}}; }
form { max-width: 480px; margin: 0 auto; }
label { display: block; margin: 12px 0 4px; font-weight: 600; }
input, textarea, select { width: 100%; box-sizing: border-box; padding: 8px; border: 1px solid #ccc; border-radius: {{.Radius}}; }
.option { font-weight: 400; display: flex; align-items: center; gap: 6px; margin: 4px 0; }
.option input { width: auto; }
button { margin-top: 16px; padding: 10px 20px; border: 0; border-radius: {{.Radius}}; background: {{.Primary}}; color: #fff; cursor: pointer; }
.hp { position: absolute; left: -9999px; }
.status { margin-top: 12px; }
</style>
</head>
<body>
<form method="POST" action="{{.Action}}" id="sheetform">
<h2>{{.Form.Title}}</h2>
{{if .Form.Description}}<p>{{.Form.Description}}</p>{{end}}
{{range .Fields}}
<label for="f-{{.Name}}">{{if .Label}}{{.Label}}{{else}}{{.Name}}{{end}}{{if .Required}} *{{end}}</label>
{{if eq .Type "textarea"}}
<textarea id="f-{{.Name}}" name="{{.Name}}" {{if .Required}}required{{end}}></textarea>
{{else if eq .Type "select"}}
<select id="f-{{.Name}}" name="{{.Name}}" {{if .Required}}required{{end}}>
<option value=""></option>
{{range .Options}}<option value="{{.}}">{{.}}</option>{{end}}
</select>
{{else if eq .Type "checkbox"}}
{{$name := .Name}}{{range .Options}}<div class="option"><input type="checkbox" name="{{$name}}" value="{{.}}"> {{.}}</div>{{end}}
{{else if eq .Type "radio"}}
{{$name := .Name}}{{range .Options}}<div class="option"><input type="radio" name="{{$name}}" value="{{.}}"> {{.}}</div>{{end}}
{{else if eq .Type "email"}}
<input type="email" id="f-{{.Name}}" name="{{.Name}}" {{if .Required}}required{{end}}>
{{else if eq .Type "number"}}
<input type="number" id="f-{{.Name}}" name="{{.Name}}" {{if .Required}}required{{end}}>
{{else}}
<input type="text" id="f-{{.Name}}" name="{{.Name}}" {{if .Required}}required{{end}}>
{{end}}
{{end}}
<input class="hp" type="text" name="{{.Honeypot}}" tabindex="-1" autocomplete="off">
<button type="submit">{{.Submit}}</button>
<div class="status" id="status"></div>
</form>
</body>
</html>`))

type embedPage struct {
	Form       *models.Form
	Fields     []models.FormField
	Honeypot   string
	Action     string
	Submit     string
	Primary    template.CSS
	Background template.CSS
	Text       template.CSS
	Font       template.CSS
	Radius     template.CSS
}

// EmbedForm renders the iframe-embeddable page for a form and lazily
// ensures an active endpoint config exists for it.
func EmbedForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := parseUintVar(mux.Vars(r)["formId"])
	if !ok {
		http.Error(w, "Invalid form ID", http.StatusBadRequest)
		return
	}

	resolver := &pipeline.Resolver{DB: db.DB}
	cfg, perr := resolver.EnsureEmbedConfig(formID)
	if perr != nil {
		http.Error(w, perr.Message, perr.Status())
		return
	}

	var form models.Form
	if err := db.DB.First(&form, formID).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	fields, err := form.FieldList()
	if err != nil {
		http.Error(w, "Form schema is invalid", http.StatusInternalServerError)
		return
	}

	page := embedPage{
		Form:       &form,
		Fields:     fields,
		Honeypot:   cfg.HoneypotField,
		Action:     config.BaseURL() + "/embed/form/" + mux.Vars(r)["formId"] + "/submit",
		Submit:     themeParam(r, "submit_label", "Submit"),
		Primary:    template.CSS(themeParam(r, "primary", "#2563eb")),
		Background: template.CSS(themeParam(r, "bg", "#ffffff")),
		Text:       template.CSS(themeParam(r, "text", "#111827")),
		Font:       template.CSS(themeParam(r, "font", "system-ui, sans-serif")),
		Radius:     template.CSS(themeParam(r, "radius", "6px")),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := embedTmpl.Execute(w, page); err != nil {
		http.Error(w, "Failed to render form", http.StatusInternalServerError)
	}
}
