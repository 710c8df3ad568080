package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex"`
	Name         string
	GoogleID     *string `gorm:"uniqueIndex"`
	Picture      string
	PasswordHash string
	IsAdmin      bool
	// Google OAuth credential used to write the user's sheets on their behalf.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	TokenExpiry  time.Time
	Forms        []Form
	Sheets       []ConnectedSheet
}

// FormField is one entry in a Form's ordered field schema. Name is the
// submission-data key and must be unique within the form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, textarea, email, number, checkbox, select, radio
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type Form struct {
	gorm.Model
	UserID           uint
	Title            string
	Description      string
	Fields           datatypes.JSON // ordered []FormField
	IsActive         bool
	IsPublic         bool
	ConnectedSheetID *uint
	ConnectedSheet   *ConnectedSheet
	APIConfigs       []FormAPIConfig
	User             User `json:"-"`
}

func (f *Form) FieldList() ([]FormField, error) {
	if len(f.Fields) == 0 {
		return nil, nil
	}
	var fields []FormField
	if err := json.Unmarshal(f.Fields, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (f *Form) SetFields(fields []FormField) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	f.Fields = raw
	return nil
}

// ConnectedSheet points at a remote spreadsheet/tab pair. It carries no
// data of its own, only identifiers and display metadata.
type ConnectedSheet struct {
	gorm.Model
	UserID        uint
	SpreadsheetID string
	SheetName     string
	Title         string
}

const (
	CaptchaRecaptchaV2 = "recaptcha_v2"
	CaptchaRecaptchaV3 = "recaptcha_v3"
	CaptchaHCaptcha    = "hcaptcha"
)

const (
	ResponseTypeJSON     = "json"
	ResponseTypeRedirect = "redirect"
)

// DefaultHoneypotField is the hidden field name used by configs that
// don't set their own.
const DefaultHoneypotField = "_gotcha"

// MappingEntry maps an external payload key to an internal form field
// name. Entries are stored as an ordered JSON array; key uniqueness is
// enforced when the config is written.
type MappingEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FormAPIConfig is the policy + credential record governing one
// submission channel (embed or external API) of a Form.
type FormAPIConfig struct {
	gorm.Model
	FormID    uint
	Form      Form   `json:"-"`
	APIHash   string `gorm:"uniqueIndex;size:64"`
	APIKey    string `gorm:"uniqueIndex;size:64" json:"-"`
	IsActive  bool   `gorm:"default:true"`
	IsDefault bool

	CORSEnabled    bool
	AllowedOrigins datatypes.JSON // []string, may contain "*"

	CaptchaEnabled bool
	CaptchaType    string
	CaptchaSecret  string `json:"-"`

	HoneypotField string

	ValidationEnabled bool
	RequiredFields    datatypes.JSON // ordered []string
	FieldMapping      datatypes.JSON // ordered []MappingEntry

	ResponseType   string `gorm:"default:json"`
	SuccessMessage string
	RedirectURL    string

	Submissions []APISubmission `gorm:"foreignKey:ConfigID"`
}

func (c *FormAPIConfig) OriginList() []string {
	var origins []string
	if len(c.AllowedOrigins) > 0 {
		json.Unmarshal(c.AllowedOrigins, &origins)
	}
	return origins
}

func (c *FormAPIConfig) RequiredFieldList() []string {
	var fields []string
	if len(c.RequiredFields) > 0 {
		json.Unmarshal(c.RequiredFields, &fields)
	}
	return fields
}

func (c *FormAPIConfig) MappingEntries() []MappingEntry {
	var entries []MappingEntry
	if len(c.FieldMapping) > 0 {
		json.Unmarshal(c.FieldMapping, &entries)
	}
	return entries
}

// Submission write-status values. A submission is durably received at
// pending; the status is updated exactly once when the sheet write
// resolves.
const (
	WriteStatusPending = "pending"
	WriteStatusWritten = "written"
	WriteStatusSkipped = "skipped"
	WriteStatusFailed  = "failed"
)

const (
	ChannelEmbed = "embed"
	ChannelAPI   = "api"
)

// APISubmission is the immutable record of one accepted submission.
// The payload is never updated after creation; only the write status is.
type APISubmission struct {
	gorm.Model
	ConfigID    uint
	FormID      uint
	Channel     string
	Payload     datatypes.JSON
	IP          string
	UserAgent   string
	Origin      string
	WriteStatus string `gorm:"default:pending"`
	WriteError  string
}

func (s *APISubmission) PayloadMap() (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if len(s.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(s.Payload, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// APIUsageLog is an append-only audit row, one per inbound submission
// request including rejected ones.
type APIUsageLog struct {
	gorm.Model
	ConfigID   uint
	StatusCode int
	ErrorMsg   string
}

type Notification struct {
	gorm.Model
	UserID       uint
	FormID       uint
	SubmissionID uint
	Message      string
	IsRead       bool
}

// FormTemplate is a catalog entry the form builder can instantiate.
type FormTemplate struct {
	gorm.Model
	Name        string
	Description string
	Category    string
	Fields      datatypes.JSON // ordered []FormField
}
