package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/pipeline"
)

// Pipe is the shared submission pipeline, initialized after the DB.
var Pipe *pipeline.Pipeline

func InitPipeline() {
	Pipe = pipeline.New(db.DB)
}

// parseSubmissionBody accepts JSON or form-urlencoded bodies with
// arbitrary keys. Repeated form keys become arrays.
func parseSubmissionBody(r *http.Request) (map[string]interface{}, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		payload := map[string]interface{}{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	payload := make(map[string]interface{}, len(r.PostForm))
	for key, vals := range r.PostForm {
		if len(vals) == 1 {
			payload[key] = vals[0]
		} else {
			arr := make([]interface{}, len(vals))
			for i, v := range vals {
				arr[i] = v
			}
			payload[key] = arr
		}
	}
	return payload, nil
}

func bearerKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// ExternalSubmit handles POST /api/external/submit/{apiHash}.
func ExternalSubmit(w http.ResponseWriter, r *http.Request) {
	payload, err := parseSubmissionBody(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "malformed request body"})
		return
	}

	req := &pipeline.Request{
		Policy:    pipeline.ExternalChannel,
		Hash:      mux.Vars(r)["apiHash"],
		Payload:   payload,
		Origin:    r.Header.Get("Origin"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		APIKey:    bearerKey(r),
	}
	res, perr := Pipe.Process(r.Context(), req)
	writeSubmitResponse(w, r, res, perr)

	if perr == nil && res.Submission != nil {
		go NotifyOwner(res.Config.Form.UserID, res.Config.FormID, res.Submission.ID)
	}
}

// EmbedSubmit handles POST /embed/form/{formId}/submit. Same pipeline
// as the external API, with no bearer-auth requirement.
func EmbedSubmit(w http.ResponseWriter, r *http.Request) {
	formID, ok := parseUintVar(mux.Vars(r)["formId"])
	if !ok {
		http.Error(w, "Invalid form ID", http.StatusBadRequest)
		return
	}
	payload, err := parseSubmissionBody(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "malformed request body"})
		return
	}

	req := &pipeline.Request{
		Policy:    pipeline.EmbedChannel,
		FormID:    formID,
		Payload:   payload,
		Origin:    r.Header.Get("Origin"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	res, perr := Pipe.Process(r.Context(), req)
	writeSubmitResponse(w, r, res, perr)

	if perr == nil && res.Submission != nil {
		go NotifyOwner(res.Config.Form.UserID, res.Config.FormID, res.Submission.ID)
	}
}

func writeSubmitResponse(w http.ResponseWriter, r *http.Request, res *pipeline.Result, perr *pipeline.Error) {
	origin := r.Header.Get("Origin")
	if res != nil && res.Config != nil {
		pipeline.ApplyCORS(w, res.Config, origin)
	}

	if perr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(perr.Status())
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": perr.Message})
		return
	}

	cfg := res.Config
	if cfg.ResponseType == models.ResponseTypeRedirect && cfg.RedirectURL != "" {
		http.Redirect(w, r, cfg.RedirectURL, http.StatusSeeOther)
		return
	}

	message := cfg.SuccessMessage
	if message == "" {
		message = "Submission received"
	}
	data, _ := res.Submission.PayloadMap()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"message":      message,
		"data":         data,
		"sheet_status": res.Sheet,
	})
}

// ExternalPreflight answers CORS preflights on the external submit
// path. Always 200; the headers carry the policy decision.
func ExternalPreflight(w http.ResponseWriter, r *http.Request) {
	resolver := &pipeline.Resolver{DB: db.DB}
	cfg, _ := resolver.ByHash(mux.Vars(r)["apiHash"])
	pipeline.Preflight(w, cfg, r.Header.Get("Origin"))
}

// EmbedPreflight answers preflights on the embed submit path without
// lazily creating a config; that happens on render or submit.
func EmbedPreflight(w http.ResponseWriter, r *http.Request) {
	var cfg models.FormAPIConfig
	err := db.DB.Where("form_id = ? AND is_active = ?", mux.Vars(r)["formId"], true).
		Order("is_default DESC, id ASC").
		First(&cfg).Error
	if err != nil {
		pipeline.Preflight(w, nil, r.Header.Get("Origin"))
		return
	}
	pipeline.Preflight(w, &cfg, r.Header.Get("Origin"))
}

// ExternalConfigInfo serves the non-secret metadata of an endpoint,
// for integrators. The api_key is never included here.
func ExternalConfigInfo(w http.ResponseWriter, r *http.Request) {
	resolver := &pipeline.Resolver{DB: db.DB}
	cfg, perr := resolver.ByHash(mux.Vars(r)["apiHash"])
	if perr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(perr.Status())
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": perr.Message})
		return
	}

	info := configResponse(cfg, false)
	info["form_title"] = cfg.Form.Title
	if fields, err := cfg.Form.FieldList(); err == nil {
		info["fields"] = fields
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
