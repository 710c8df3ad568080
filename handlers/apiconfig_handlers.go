package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/pipeline"
	"gorm.io/datatypes"
)

var configValidator = validator.New()

type apiConfigRequest struct {
	FormID            uint                  `json:"form_id" validate:"required"`
	CORSEnabled       bool                  `json:"cors_enabled"`
	AllowedOrigins    []string              `json:"allowed_origins"`
	CaptchaEnabled    bool                  `json:"captcha_enabled"`
	CaptchaType       string                `json:"captcha_type" validate:"omitempty,oneof=recaptcha_v2 recaptcha_v3 hcaptcha"`
	CaptchaSecret     string                `json:"captcha_secret"`
	HoneypotField     *string               `json:"honeypot_field"`
	ValidationEnabled bool                  `json:"validation_enabled"`
	RequiredFields    []string              `json:"required_fields"`
	FieldMapping      []models.MappingEntry `json:"field_mapping"`
	ResponseType      string                `json:"response_type" validate:"omitempty,oneof=json redirect"`
	SuccessMessage    string                `json:"success_message"`
	RedirectURL       string                `json:"redirect_url" validate:"omitempty,url"`
}

// checkConfigRequest enforces the policy invariants that are validated
// at config-write time, not at submission time: mapping keys unique,
// captcha fully specified when enabled, redirect target present.
func checkConfigRequest(req *apiConfigRequest) string {
	if err := configValidator.Struct(req); err != nil {
		return err.Error()
	}
	seen := map[string]bool{}
	for _, e := range req.FieldMapping {
		if e.From == "" || e.To == "" {
			return "field mapping entries need both from and to"
		}
		if seen[e.From] {
			return "duplicate field mapping key: " + e.From
		}
		seen[e.From] = true
	}
	if req.CaptchaEnabled && (req.CaptchaType == "" || req.CaptchaSecret == "") {
		return "captcha_type and captcha_secret are required when captcha is enabled"
	}
	if req.ResponseType == models.ResponseTypeRedirect && req.RedirectURL == "" {
		return "redirect_url is required for redirect responses"
	}
	return ""
}

func asJSON(v interface{}) datatypes.JSON {
	raw, _ := json.Marshal(v)
	return datatypes.JSON(raw)
}

func applyConfigRequest(cfg *models.FormAPIConfig, req *apiConfigRequest) {
	cfg.CORSEnabled = req.CORSEnabled
	cfg.AllowedOrigins = asJSON(req.AllowedOrigins)
	cfg.CaptchaEnabled = req.CaptchaEnabled
	cfg.CaptchaType = req.CaptchaType
	cfg.CaptchaSecret = req.CaptchaSecret
	if req.HoneypotField != nil {
		cfg.HoneypotField = *req.HoneypotField
	} else if cfg.HoneypotField == "" {
		cfg.HoneypotField = models.DefaultHoneypotField
	}
	cfg.ValidationEnabled = req.ValidationEnabled
	cfg.RequiredFields = asJSON(req.RequiredFields)
	cfg.FieldMapping = asJSON(req.FieldMapping)
	if req.ResponseType != "" {
		cfg.ResponseType = req.ResponseType
	}
	cfg.SuccessMessage = req.SuccessMessage
	cfg.RedirectURL = req.RedirectURL
}

// configResponse exposes the api_key only where the owner explicitly
// asked for it (create and rotate).
func configResponse(cfg *models.FormAPIConfig, includeKey bool) map[string]interface{} {
	resp := map[string]interface{}{
		"id":                 cfg.ID,
		"form_id":            cfg.FormID,
		"api_hash":           cfg.APIHash,
		"is_active":          cfg.IsActive,
		"is_default":         cfg.IsDefault,
		"cors_enabled":       cfg.CORSEnabled,
		"allowed_origins":    cfg.OriginList(),
		"captcha_enabled":    cfg.CaptchaEnabled,
		"captcha_type":       cfg.CaptchaType,
		"honeypot_field":     cfg.HoneypotField,
		"validation_enabled": cfg.ValidationEnabled,
		"required_fields":    cfg.RequiredFieldList(),
		"field_mapping":      cfg.MappingEntries(),
		"response_type":      cfg.ResponseType,
		"success_message":    cfg.SuccessMessage,
		"redirect_url":       cfg.RedirectURL,
	}
	if includeKey {
		resp["api_key"] = cfg.APIKey
	}
	return resp
}

func ownedForm(r *http.Request, formID uint) (*models.Form, bool) {
	userID := r.Context().Value("userID").(uint)
	var form models.Form
	if err := db.DB.Where("user_id = ?", userID).First(&form, formID).Error; err != nil {
		return nil, false
	}
	return &form, true
}

func ownedConfig(r *http.Request, configID string) (*models.FormAPIConfig, bool) {
	userID := r.Context().Value("userID").(uint)
	var cfg models.FormAPIConfig
	if err := db.DB.Preload("Form").First(&cfg, configID).Error; err != nil {
		return nil, false
	}
	if cfg.Form.UserID != userID {
		return nil, false
	}
	return &cfg, true
}

func CreateAPIConfig(w http.ResponseWriter, r *http.Request) {
	var req apiConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg := checkConfigRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if _, ok := ownedForm(r, req.FormID); !ok {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}

	cfg := models.FormAPIConfig{
		FormID:   req.FormID,
		APIHash:  pipeline.NewAPIHash(),
		APIKey:   pipeline.NewAPIKey(),
		IsActive: true,
	}
	applyConfigRequest(&cfg, &req)

	if err := db.DB.Create(&cfg).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(configResponse(&cfg, true))
}

func ListAPIConfigs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	formID, ok := parseUintVar(vars["id"])
	if !ok {
		http.Error(w, "Invalid form ID", http.StatusBadRequest)
		return
	}
	if _, ok := ownedForm(r, formID); !ok {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}

	var configs []models.FormAPIConfig
	if err := db.DB.Where("form_id = ?", formID).Order("id ASC").Find(&configs).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]interface{}, 0, len(configs))
	for i := range configs {
		out = append(out, configResponse(&configs[i], false))
	}
	json.NewEncoder(w).Encode(out)
}

func GetAPIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := ownedConfig(r, mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Config not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(configResponse(cfg, false))
}

func UpdateAPIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := ownedConfig(r, mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Config not found", http.StatusNotFound)
		return
	}

	var req apiConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.FormID = cfg.FormID // the config never moves between forms
	if msg := checkConfigRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	applyConfigRequest(cfg, &req)
	if err := db.DB.Save(cfg).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(configResponse(cfg, false))
}

// RotateAPIKey replaces the bearer credential; the public hash stays
// stable so embedded snippets keep working.
func RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	cfg, ok := ownedConfig(r, mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Config not found", http.StatusNotFound)
		return
	}
	cfg.APIKey = pipeline.NewAPIKey()
	if err := db.DB.Save(cfg).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(configResponse(cfg, true))
}

// DeactivateAPIConfig soft-disables the config. The record stays while
// submissions reference it.
func DeactivateAPIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := ownedConfig(r, mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Config not found", http.StatusNotFound)
		return
	}
	cfg.IsActive = false
	if err := db.DB.Save(cfg).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
