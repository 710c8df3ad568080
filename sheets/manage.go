package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

type SpreadsheetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListSpreadsheets lists spreadsheets the owner can see, for the
// dashboard's sheet picker.
func ListSpreadsheets(ctx context.Context, ts oauth2.TokenSource, limit int64) ([]SpreadsheetInfo, error) {
	client := oauth2.NewClient(ctx, ts)
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	resp, err := svc.Files.List().
		Q("mimeType='application/vnd.google-apps.spreadsheet' and trashed=false").
		PageSize(limit).
		Fields("files(id, name)").
		OrderBy("modifiedTime desc").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	infos := make([]SpreadsheetInfo, 0, len(resp.Files))
	for _, f := range resp.Files {
		infos = append(infos, SpreadsheetInfo{ID: f.Id, Name: f.Name})
	}
	return infos, nil
}

// CreateSpreadsheet creates a new spreadsheet owned by the user and
// returns its id and first tab name.
func CreateSpreadsheet(ctx context.Context, ts oauth2.TokenSource, title string) (string, string, error) {
	client := oauth2.NewClient(ctx, ts)
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", err
	}
	ss, err := svc.Spreadsheets.Create(&sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	tab := "Sheet1"
	if len(ss.Sheets) > 0 && ss.Sheets[0].Properties != nil {
		tab = ss.Sheets[0].Properties.Title
	}
	if ss.SpreadsheetId == "" {
		return "", "", fmt.Errorf("spreadsheet created without an id")
	}
	return ss.SpreadsheetId, tab, nil
}
