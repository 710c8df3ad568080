package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
)

func AdminListUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := db.DB.Order("created_at DESC").Find(&users).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(users)
}

func AdminListForms(w http.ResponseWriter, r *http.Request) {
	var forms []models.Form
	if err := db.DB.Order("created_at DESC").Limit(500).Find(&forms).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(forms)
}

// AdminStats is the platform-wide counters view.
func AdminStats(w http.ResponseWriter, r *http.Request) {
	var users, forms, submissions, activeConfigs int64
	db.DB.Model(&models.User{}).Count(&users)
	db.DB.Model(&models.Form{}).Count(&forms)
	db.DB.Model(&models.APISubmission{}).Count(&submissions)
	db.DB.Model(&models.FormAPIConfig{}).Where("is_active = ?", true).Count(&activeConfigs)

	json.NewEncoder(w).Encode(map[string]int64{
		"users":         users,
		"forms":         forms,
		"submissions":   submissions,
		"activeConfigs": activeConfigs,
	})
}
