package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
)

// NotifyOwner records a new-submission notification for the form
// owner. Best-effort: called from a goroutine, failures are logged and
// never affect the submitter's request.
func NotifyOwner(userID, formID, submissionID uint) {
	var form models.Form
	if err := db.DB.First(&form, formID).Error; err != nil {
		log.Printf("notification skipped, form %d not found: %v", formID, err)
		return
	}

	n := models.Notification{
		UserID:       userID,
		FormID:       formID,
		SubmissionID: submissionID,
		Message:      fmt.Sprintf("New submission on %q", form.Title),
	}
	if err := db.DB.Create(&n).Error; err != nil {
		log.Printf("failed to create notification for user %d: %v", userID, err)
	}
}

func ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	var notifications []models.Notification
	err := db.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&notifications).Error
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(notifications)
}

func MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := r.Context().Value("userID").(uint)

	var n models.Notification
	if err := db.DB.Where("user_id = ?", userID).First(&n, vars["id"]).Error; err != nil {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	n.IsRead = true
	if err := db.DB.Save(&n).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(n)
}

func MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)
	err := db.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
