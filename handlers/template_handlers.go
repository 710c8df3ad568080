package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
)

func ListTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []models.FormTemplate
	query := db.DB.Order("category ASC, name ASC")
	if category := r.URL.Query().Get("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Find(&templates).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(templates)
}

func GetTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var tmpl models.FormTemplate
	if err := db.DB.First(&tmpl, vars["id"]).Error; err != nil {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(tmpl)
}

// CreateFormFromTemplate instantiates a template as a new inactive
// form owned by the caller.
func CreateFormFromTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var tmpl models.FormTemplate
	if err := db.DB.First(&tmpl, vars["id"]).Error; err != nil {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}

	userID := r.Context().Value("userID").(uint)
	form := models.Form{
		UserID:      userID,
		Title:       tmpl.Name,
		Description: tmpl.Description,
		Fields:      tmpl.Fields,
		IsActive:    false,
	}
	if err := db.DB.Create(&form).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(form)
}

// CreateTemplate adds a catalog entry. Admin only.
func CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.FormTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if tmpl.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := db.DB.Create(&tmpl).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tmpl)
}

func DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := db.DB.Delete(&models.FormTemplate{}, vars["id"]).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
