package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sheetform/SheetForm/auth"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/sheets"
	"github.com/sheetform/SheetForm/spam"
	"github.com/sheetform/SheetForm/validate"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ChannelPolicy parametrizes the one orchestrator for the two
// submission channels instead of duplicating the stage sequence.
type ChannelPolicy struct {
	Name             string
	RequireAPIKey    bool
	AutoCreateConfig bool
}

var (
	ExternalChannel = ChannelPolicy{Name: models.ChannelAPI, RequireAPIKey: true}
	EmbedChannel    = ChannelPolicy{Name: models.ChannelEmbed, AutoCreateConfig: true}
)

// Request is one inbound submission, already parsed off the wire.
type Request struct {
	Policy    ChannelPolicy
	Hash      string // external channel
	FormID    uint   // embed channel
	Payload   map[string]interface{}
	Origin    string
	IP        string
	UserAgent string
	APIKey    string
}

type SheetStatus struct {
	Written bool    `json:"written"`
	Error   *string `json:"error"`
}

type Result struct {
	Config      *models.FormAPIConfig
	Submission  *models.APISubmission
	AllowOrigin string
	Sheet       SheetStatus
}

// SheetWriter mirrors one submission row into a remote sheet.
type SheetWriter interface {
	Write(ctx context.Context, tokens sheets.TokenSourceFunc, spreadsheetID, sheetName string, labels []string, values map[string]string) error
}

// Pipeline sequences resolve, auth/CORS, spam, validation, storage and
// the best-effort sheet write for one inbound submission.
type Pipeline struct {
	DB             *gorm.DB
	Writer         SheetWriter
	Captcha        spam.Verifier
	Limiter        *spam.RateLimiter
	CaptchaTimeout time.Duration
}

func New(db *gorm.DB) *Pipeline {
	return &Pipeline{
		DB:             db,
		Writer:         sheets.NewWriter(),
		Captcha:        spam.NewHTTPVerifier(),
		Limiter:        spam.NewRateLimiter(30, 10),
		CaptchaTimeout: 10 * time.Second,
	}
}

// Process runs the full pipeline and appends one usage-log row per
// request, rejected ones included. Audit failures never abort the
// primary request.
func (p *Pipeline) Process(ctx context.Context, req *Request) (*Result, *Error) {
	res, perr := p.process(ctx, req)

	logRow := models.APIUsageLog{StatusCode: http.StatusOK}
	if res != nil && res.Config != nil {
		logRow.ConfigID = res.Config.ID
	}
	if perr != nil {
		logRow.StatusCode = perr.Status()
		logRow.ErrorMsg = perr.Message
	}
	if err := p.DB.Create(&logRow).Error; err != nil {
		log.Printf("failed to append usage log: %v", err)
	}
	return res, perr
}

func (p *Pipeline) process(ctx context.Context, req *Request) (*Result, *Error) {
	res := &Result{}

	// Resolve config.
	resolver := &Resolver{DB: p.DB}
	var cfg *models.FormAPIConfig
	var perr *Error
	if req.Policy.AutoCreateConfig {
		cfg, perr = resolver.EnsureEmbedConfig(req.FormID)
	} else {
		cfg, perr = resolver.ByHash(req.Hash)
	}
	if perr != nil {
		return res, perr
	}
	res.Config = cfg

	// CORS decision is header-only; auth is a hard reject.
	res.AllowOrigin = ResolveAllowOrigin(cfg, req.Origin)
	if req.Policy.RequireAPIKey {
		if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(cfg.APIKey)) != 1 {
			log.Printf("rejected submission for config %d: bad API key from %s", cfg.ID, req.IP)
			return res, errUnauthorized("invalid API key")
		}
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	// Spam checks, fixed order, short-circuit on first failure.
	if spam.HoneypotTripped(payload, cfg.HoneypotField) {
		return res, errForbidden("submission rejected")
	}
	if cfg.CaptchaEnabled {
		field := spam.TokenField(cfg.CaptchaType)
		token, _ := payload[field].(string)
		if strings.TrimSpace(token) == "" {
			return res, errBadRequest("CAPTCHA required")
		}
		stripCaptchaTokens(payload)
		cctx, cancel := context.WithTimeout(ctx, p.CaptchaTimeout)
		ok, err := p.Captcha.Verify(cctx, cfg.CaptchaType, cfg.CaptchaSecret, token, req.IP)
		cancel()
		if err != nil || !ok {
			if err != nil {
				log.Printf("captcha verification error for config %d: %v", cfg.ID, err)
			}
			return res, errForbidden("CAPTCHA verification failed")
		}
	} else {
		stripCaptchaTokens(payload)
	}
	if p.Limiter != nil && !p.Limiter.Allow(req.IP) {
		return res, errForbidden("submission rate exceeded")
	}

	// Rename external keys per the config's field mapping, then
	// validate. Arrays stay arrays until sheet-write time.
	mapping := map[string]string{}
	for _, e := range cfg.MappingEntries() {
		mapping[e.From] = e.To
	}
	payload = validate.ApplyMapping(payload, mapping)

	if cfg.ValidationEnabled {
		required := cfg.RequiredFieldList()
		if len(required) == 0 {
			if fields, err := cfg.Form.FieldList(); err == nil {
				for _, f := range fields {
					if f.Required {
						required = append(required, f.Name)
					}
				}
			}
		}
		if missing := validate.MissingRequired(payload, required); len(missing) > 0 {
			return res, errBadRequest("missing required fields: " + strings.Join(missing, ", "))
		}
	}

	// Store. Past this point the request is accepted no matter what
	// the sheet write does.
	raw, err := json.Marshal(payload)
	if err != nil {
		return res, errInternal("failed to encode payload")
	}
	sub := &models.APISubmission{
		ConfigID:    cfg.ID,
		FormID:      cfg.FormID,
		Channel:     req.Policy.Name,
		Payload:     raw,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Origin:      req.Origin,
		WriteStatus: models.WriteStatusPending,
	}
	if err := p.DB.Create(sub).Error; err != nil {
		return res, errInternal("failed to store submission")
	}
	res.Submission = sub

	p.writeSheet(ctx, res, payload)
	return res, nil
}

func (p *Pipeline) writeSheet(ctx context.Context, res *Result, payload map[string]interface{}) {
	form := &res.Config.Form
	if form.ConnectedSheetID == nil || form.ConnectedSheet == nil {
		reason := "no connected sheet"
		p.markOutcome(res.Submission, models.WriteStatusSkipped, reason)
		res.Sheet = SheetStatus{Written: false, Error: &reason}
		return
	}

	labels, values := sheetRow(form, payload)
	owner := form.User
	tokens := func(tctx context.Context, force bool) (oauth2.TokenSource, error) {
		return auth.OwnerTokenSource(tctx, &owner, force)
	}

	err := p.Writer.Write(ctx, tokens, form.ConnectedSheet.SpreadsheetID, form.ConnectedSheet.SheetName, labels, values)
	if err != nil {
		reason := err.Error()
		var we *sheets.WriteError
		if errors.As(err, &we) {
			reason = we.Reason
		}
		log.Printf("sheet write failed for submission %d: %v", res.Submission.ID, err)
		p.markOutcome(res.Submission, models.WriteStatusFailed, reason)
		res.Sheet = SheetStatus{Written: false, Error: &reason}
		return
	}
	p.markOutcome(res.Submission, models.WriteStatusWritten, "")
	res.Sheet = SheetStatus{Written: true}
}

// markOutcome records the sheet-write resolution, exactly once per
// submission. The payload itself is never touched again.
func (p *Pipeline) markOutcome(sub *models.APISubmission, status, reason string) {
	sub.WriteStatus = status
	sub.WriteError = reason
	err := p.DB.Model(&models.APISubmission{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{"write_status": status, "write_error": reason}).Error
	if err != nil {
		log.Printf("failed to mark outcome for submission %d: %v", sub.ID, err)
	}
}

func stripCaptchaTokens(payload map[string]interface{}) {
	delete(payload, "g-recaptcha-response")
	delete(payload, "h-captcha-response")
}

// sheetRow turns a payload into label-keyed cell values. Schema fields
// come first in declared order; extra payload keys follow
// alphabetically under their own names.
func sheetRow(form *models.Form, payload map[string]interface{}) ([]string, map[string]string) {
	fields, _ := form.FieldList()
	labels := make([]string, 0, len(fields))
	values := make(map[string]string, len(payload))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		labels = append(labels, label)
		seen[f.Name] = true
		if v, ok := payload[f.Name]; ok {
			values[label] = ValueString(v)
		} else {
			values[label] = ""
		}
	}
	var extras []string
	for key := range payload {
		if !seen[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		labels = append(labels, key)
		values[key] = ValueString(payload[key])
	}
	return labels, values
}

// ValueString renders one submitted value as a sheet cell. List values
// are joined with ", " here and nowhere earlier.
func ValueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, ValueString(e))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
