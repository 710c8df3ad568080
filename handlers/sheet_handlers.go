package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/auth"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/sheets"
)

// ConnectSheet registers an existing spreadsheet/tab pair for the
// current user.
func ConnectSheet(w http.ResponseWriter, r *http.Request) {
	var sheet models.ConnectedSheet
	if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if sheet.SpreadsheetID == "" {
		http.Error(w, "spreadsheet_id is required", http.StatusBadRequest)
		return
	}
	if sheet.SheetName == "" {
		sheet.SheetName = "Sheet1"
	}

	userID := r.Context().Value("userID").(uint)
	sheet.UserID = userID

	if err := db.DB.Create(&sheet).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sheet)
}

func ListSheets(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	var connected []models.ConnectedSheet
	if err := db.DB.Where("user_id = ?", userID).Find(&connected).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(connected)
}

func DeleteSheet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := r.Context().Value("userID").(uint)

	var sheet models.ConnectedSheet
	if err := db.DB.Where("user_id = ?", userID).First(&sheet, vars["id"]).Error; err != nil {
		http.Error(w, "Sheet not found", http.StatusNotFound)
		return
	}
	if err := db.DB.Delete(&sheet).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDriveSpreadsheets lists the user's Google spreadsheets for the
// sheet picker.
func ListDriveSpreadsheets(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	var user models.User
	if err := db.DB.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	ts, err := auth.OwnerTokenSource(r.Context(), &user, false)
	if err != nil {
		http.Error(w, "No Google credential on file; sign in with Google first", http.StatusBadRequest)
		return
	}
	infos, err := sheets.ListSpreadsheets(r.Context(), ts, 50)
	if err != nil {
		http.Error(w, "Failed to list spreadsheets: "+err.Error(), http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(infos)
}

// CreateAndConnectSheet creates a brand-new spreadsheet in the user's
// Drive and connects it in one step.
func CreateAndConnectSheet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Title == "" {
		body.Title = "SheetForm submissions"
	}

	userID := r.Context().Value("userID").(uint)
	var user models.User
	if err := db.DB.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	ts, err := auth.OwnerTokenSource(r.Context(), &user, false)
	if err != nil {
		http.Error(w, "No Google credential on file; sign in with Google first", http.StatusBadRequest)
		return
	}
	id, tab, err := sheets.CreateSpreadsheet(r.Context(), ts, body.Title)
	if err != nil {
		http.Error(w, "Failed to create spreadsheet: "+err.Error(), http.StatusBadGateway)
		return
	}

	sheet := models.ConnectedSheet{
		UserID:        userID,
		SpreadsheetID: id,
		SheetName:     tab,
		Title:         body.Title,
	}
	if err := db.DB.Create(&sheet).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sheet)
}
