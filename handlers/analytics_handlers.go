package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/pipeline"
)

// ListSubmissions returns a form's stored submissions, newest first.
func ListSubmissions(w http.ResponseWriter, r *http.Request) {
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

	var submissions []models.APISubmission
	err := db.DB.Where("form_id = ?", formID).
		Order("created_at DESC").
		Limit(500).
		Find(&submissions).Error
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(submissions)
}

// GetFormAnalytics summarizes a form's ingestion: totals per channel,
// sheet-write outcomes and the usage log's status distribution.
func GetFormAnalytics(w http.ResponseWriter, r *http.Request) {
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

	analytics := make(map[string]interface{})

	var total int64
	db.DB.Model(&models.APISubmission{}).Where("form_id = ?", formID).Count(&total)
	analytics["totalSubmissions"] = total

	channelCounts := map[string]int64{}
	for _, channel := range []string{models.ChannelEmbed, models.ChannelAPI} {
		var n int64
		db.DB.Model(&models.APISubmission{}).
			Where("form_id = ? AND channel = ?", formID, channel).
			Count(&n)
		channelCounts[channel] = n
	}
	analytics["byChannel"] = channelCounts

	writeCounts := map[string]int64{}
	for _, status := range []string{models.WriteStatusWritten, models.WriteStatusFailed, models.WriteStatusSkipped, models.WriteStatusPending} {
		var n int64
		db.DB.Model(&models.APISubmission{}).
			Where("form_id = ? AND write_status = ?", formID, status).
			Count(&n)
		writeCounts[status] = n
	}
	analytics["bySheetStatus"] = writeCounts

	type statusRow struct {
		StatusCode int
		Count      int64
	}
	var statusRows []statusRow
	db.DB.Model(&models.APIUsageLog{}).
		Select("api_usage_logs.status_code as status_code, count(*) as count").
		Joins("JOIN form_api_configs ON form_api_configs.id = api_usage_logs.config_id").
		Where("form_api_configs.form_id = ?", formID).
		Group("api_usage_logs.status_code").
		Scan(&statusRows)
	statusCounts := map[string]int64{}
	for _, row := range statusRows {
		statusCounts[strconv.Itoa(row.StatusCode)] = row.Count
	}
	analytics["byStatusCode"] = statusCounts

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(analytics)
}

// ExportSubmissionsCSV streams a form's submissions as CSV, one column
// per schema field plus a trailing column for unmapped extras.
func ExportSubmissionsCSV(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	formID, ok := parseUintVar(vars["id"])
	if !ok {
		http.Error(w, "Invalid form ID", http.StatusBadRequest)
		return
	}
	form, owned := ownedForm(r, formID)
	if !owned {
		http.Error(w, "Form not found", http.StatusNotFound)
		return
	}
	fields, err := form.FieldList()
	if err != nil {
		http.Error(w, "Form schema is invalid", http.StatusInternalServerError)
		return
	}

	var submissions []models.APISubmission
	if err := db.DB.Where("form_id = ?", formID).Order("created_at ASC").Find(&submissions).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment;filename=submissions.csv")

	csvWriter := csv.NewWriter(w)

	header := []string{"SubmissionID", "Timestamp", "Channel", "SheetStatus"}
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		header = append(header, label)
	}
	csvWriter.Write(header)

	for _, sub := range submissions {
		payload, err := sub.PayloadMap()
		if err != nil {
			continue
		}
		row := []string{
			strconv.Itoa(int(sub.ID)),
			sub.CreatedAt.String(),
			sub.Channel,
			sub.WriteStatus,
		}
		for _, f := range fields {
			row = append(row, pipeline.ValueString(payload[f.Name]))
		}
		csvWriter.Write(row)
	}

	csvWriter.Flush()
}
