package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Failure reasons surfaced to the orchestrator. They end up in the
// submission's write-status, never in the HTTP status.
const (
	ReasonNoCredential = "no_credential"
	ReasonAuth         = "auth_expired"
	ReasonQuota        = "quota_exceeded"
	ReasonMissing      = "sheet_missing"
	ReasonTimeout      = "timeout"
	ReasonRemote       = "remote_error"
)

// WriteError is the typed failure of a sheet write attempt.
type WriteError struct {
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sheet write failed (%s): %v", e.Reason, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// remote is the slice of the Sheets API the writer needs. Tests swap
// in a fake.
type remote interface {
	readHeaderRow(ctx context.Context, spreadsheetID, sheetName string) ([]string, error)
	writeHeaderRow(ctx context.Context, spreadsheetID, sheetName string, labels []string) error
	appendRow(ctx context.Context, spreadsheetID, sheetName string, row []interface{}) error
}

// TokenSourceFunc yields the form owner's credential. forceRefresh
// discards any cached access token first.
type TokenSourceFunc func(ctx context.Context, forceRefresh bool) (oauth2.TokenSource, error)

// Writer mirrors accepted submissions into owner-owned spreadsheets.
// Header creation is guarded by an in-process per-sheet mutex, which
// is sufficient for a single-instance deployment; running multiple
// instances moves the header race to the remote API.
type Writer struct {
	Timeout   time.Duration
	newRemote func(ctx context.Context, ts oauth2.TokenSource) (remote, error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWriter() *Writer {
	return &Writer{
		Timeout:   20 * time.Second,
		newRemote: newGoogleRemote,
		locks:     make(map[string]*sync.Mutex),
	}
}

func newGoogleRemote(ctx context.Context, ts oauth2.TokenSource) (remote, error) {
	client := oauth2.NewClient(ctx, ts)
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	return &googleRemote{svc: svc}, nil
}

// Write ensures the header row exists and appends one row aligned to
// it. On an expired-credential failure it retries exactly once with a
// force-refreshed token.
func (w *Writer) Write(ctx context.Context, tokens TokenSourceFunc, spreadsheetID, sheetName string, labels []string, values map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	err := w.writeOnce(ctx, tokens, false, spreadsheetID, sheetName, labels, values)
	var we *WriteError
	if errors.As(err, &we) && we.Reason == ReasonAuth {
		return w.writeOnce(ctx, tokens, true, spreadsheetID, sheetName, labels, values)
	}
	return err
}

func (w *Writer) writeOnce(ctx context.Context, tokens TokenSourceFunc, forceRefresh bool, spreadsheetID, sheetName string, labels []string, values map[string]string) error {
	ts, err := tokens(ctx, forceRefresh)
	if err != nil {
		return &WriteError{Reason: ReasonNoCredential, Err: err}
	}
	rem, err := w.newRemote(ctx, ts)
	if err != nil {
		return classify(err)
	}

	headers, err := w.ensureHeaders(ctx, rem, spreadsheetID, sheetName, labels)
	if err != nil {
		return classify(err)
	}

	row := alignRow(headers, labels, values)
	if err := rem.appendRow(ctx, spreadsheetID, sheetName, row); err != nil {
		return classify(err)
	}
	return nil
}

// ensureHeaders reads the first row and writes the labels when it is
// empty. Returns the header order rows must align to. The header state
// is deliberately never cached across requests.
func (w *Writer) ensureHeaders(ctx context.Context, rem remote, spreadsheetID, sheetName string, labels []string) ([]string, error) {
	unlock := w.lockSheet(spreadsheetID + "/" + sheetName)
	defer unlock()

	headers, err := rem.readHeaderRow(ctx, spreadsheetID, sheetName)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		return headers, nil
	}
	if err := rem.writeHeaderRow(ctx, spreadsheetID, sheetName, labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func (w *Writer) lockSheet(key string) func() {
	w.mu.Lock()
	l, ok := w.locks[key]
	if !ok {
		l = &sync.Mutex{}
		w.locks[key] = l
	}
	w.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// alignRow places values positionally under the live header order.
// Labels unknown to the sheet are appended after the known columns, in
// schema order first, then alphabetically.
func alignRow(headers, labels []string, values map[string]string) []interface{} {
	row := make([]interface{}, len(headers))
	placed := make(map[string]bool, len(values))
	for i, h := range headers {
		if v, ok := values[h]; ok {
			row[i] = v
			placed[h] = true
		} else {
			row[i] = ""
		}
	}
	for _, label := range labels {
		if _, ok := values[label]; ok && !placed[label] {
			row = append(row, values[label])
			placed[label] = true
		}
	}
	var extras []string
	for label := range values {
		if !placed[label] {
			extras = append(extras, label)
		}
	}
	sort.Strings(extras)
	for _, label := range extras {
		row = append(row, values[label])
	}
	return row
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &WriteError{Reason: ReasonTimeout, Err: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401:
			return &WriteError{Reason: ReasonAuth, Err: err}
		case apiErr.Code == 429:
			return &WriteError{Reason: ReasonQuota, Err: err}
		case apiErr.Code == 403 && strings.Contains(strings.ToLower(apiErr.Message), "quota"):
			return &WriteError{Reason: ReasonQuota, Err: err}
		case apiErr.Code == 403:
			return &WriteError{Reason: ReasonAuth, Err: err}
		case apiErr.Code == 404:
			return &WriteError{Reason: ReasonMissing, Err: err}
		}
	}
	return &WriteError{Reason: ReasonRemote, Err: err}
}

type googleRemote struct {
	svc *sheetsapi.Service
}

func headerRange(sheetName string) string {
	return fmt.Sprintf("'%s'!1:1", sheetName)
}

func (g *googleRemote) readHeaderRow(ctx context.Context, spreadsheetID, sheetName string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, headerRange(sheetName)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return nil, nil
	}
	headers := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		headers = append(headers, fmt.Sprint(cell))
	}
	return headers, nil
}

func (g *googleRemote) writeHeaderRow(ctx context.Context, spreadsheetID, sheetName string, labels []string) error {
	cells := make([]interface{}, len(labels))
	for i, l := range labels {
		cells[i] = l
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{cells}}
	_, err := g.svc.Spreadsheets.Values.
		Update(spreadsheetID, headerRange(sheetName), vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}

func (g *googleRemote) appendRow(ctx context.Context, spreadsheetID, sheetName string, row []interface{}) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{row}}
	_, err := g.svc.Spreadsheets.Values.
		Append(spreadsheetID, headerRange(sheetName), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}
