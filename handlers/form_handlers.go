package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
)

func CreateForm(w http.ResponseWriter, r *http.Request) {
	var form models.Form
	err := json.NewDecoder(r.Body).Decode(&form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkFieldNames(&form); err != "" {
		http.Error(w, err, http.StatusBadRequest)
		return
	}

	userID := r.Context().Value("userID").(uint)
	form.UserID = userID
	form.IsActive = true

	if err := db.DB.Create(&form).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(form)
}

// checkFieldNames enforces that field names are unique within one form;
// they are the submission-data keys.
func checkFieldNames(form *models.Form) string {
	fields, err := form.FieldList()
	if err != nil {
		return "invalid fields: " + err.Error()
	}
	seen := map[string]bool{}
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return "field name must not be empty"
		}
		if seen[name] {
			return "duplicate field name: " + name
		}
		seen[name] = true
	}
	return ""
}

func ListForms(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	var forms []models.Form
	if err := db.DB.Where("user_id = ?", userID).Find(&forms).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(forms)
}

func GetForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	var form models.Form
	if err := db.DB.Preload("ConnectedSheet").Preload("APIConfigs").First(&form, id).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	userID := r.Context().Value("userID").(uint)
	if form.UserID != userID {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(form)
}

// PublicGetForm serves a form's schema without a session, for public
// renderers. Only public active forms are visible here.
func PublicGetForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	var form models.Form
	if err := db.DB.Where("is_public = ? AND is_active = ?", true, true).First(&form, id).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(form)
}

func UpdateForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid form ID", http.StatusBadRequest)
		return
	}

	var updated models.Form
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errMsg := checkFieldNames(&updated); errMsg != "" {
		http.Error(w, errMsg, http.StatusBadRequest)
		return
	}

	userID := r.Context().Value("userID").(uint)
	var form models.Form
	if err := db.DB.Where("user_id = ?", userID).First(&form, id).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}

	form.Title = updated.Title
	form.Description = updated.Description
	form.IsPublic = updated.IsPublic
	if len(updated.Fields) > 0 {
		form.Fields = updated.Fields
	}
	if updated.ConnectedSheetID != nil {
		form.ConnectedSheetID = updated.ConnectedSheetID
	}

	if err := db.DB.Save(&form).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(form)
}

func DeleteForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := r.Context().Value("userID").(uint)

	var form models.Form
	if err := db.DB.Where("user_id = ?", userID).First(&form, vars["id"]).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	if err := db.DB.Delete(&form).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setFormActive(w http.ResponseWriter, r *http.Request, active bool) {
	vars := mux.Vars(r)
	userID := r.Context().Value("userID").(uint)

	var form models.Form
	if err := db.DB.Where("user_id = ?", userID).First(&form, vars["id"]).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	form.IsActive = active
	if err := db.DB.Save(&form).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(form)
}

func ActivateForm(w http.ResponseWriter, r *http.Request) {
	setFormActive(w, r, true)
}

func DeactivateForm(w http.ResponseWriter, r *http.Request) {
	setFormActive(w, r, false)
}

func DuplicateForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := r.Context().Value("userID").(uint)

	var form models.Form
	if err := db.DB.Where("user_id = ?", userID).First(&form, vars["id"]).Error; err != nil {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}

	dup := models.Form{
		UserID:      userID,
		Title:       "Copy of " + form.Title,
		Description: form.Description,
		Fields:      form.Fields,
		IsActive:    false,
		IsPublic:    form.IsPublic,
	}
	if err := db.DB.Create(&dup).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dup)
}

func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	var user models.User
	if err := db.DB.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	w.Write([]byte("Welcome to your dashboard, " + user.Name + "!"))
}
