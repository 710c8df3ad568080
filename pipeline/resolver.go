package pipeline

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sheetform/SheetForm/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resolver looks up the endpoint config governing a submission channel.
type Resolver struct {
	DB *gorm.DB
}

// ByHash returns the active config for a public hash, joined with its
// form, connected sheet and owner. An inactive config or form behaves
// exactly like an absent one.
func (r *Resolver) ByHash(hash string) (*models.FormAPIConfig, *Error) {
	var cfg models.FormAPIConfig
	err := r.DB.
		Preload("Form").
		Preload("Form.ConnectedSheet").
		Preload("Form.User").
		Where("api_hash = ? AND is_active = ?", hash, true).
		First(&cfg).Error
	if err != nil {
		return nil, errNotFound("API endpoint not found")
	}
	if !cfg.Form.IsActive {
		return nil, errNotFound("API endpoint not found")
	}
	return &cfg, nil
}

// EnsureEmbedConfig returns the form's active config, creating a
// permissive default when none exists. The create runs in a
// transaction holding a row lock on the form, so concurrent first-time
// embed loads converge on a single default config.
func (r *Resolver) EnsureEmbedConfig(formID uint) (*models.FormAPIConfig, *Error) {
	var form models.Form
	if err := r.DB.First(&form, formID).Error; err != nil {
		return nil, errNotFound("form not found")
	}
	if !form.IsActive {
		return nil, errNotFound("form is not accepting submissions")
	}

	var cfg models.FormAPIConfig
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Form
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, formID).Error; err != nil {
			return err
		}
		err := tx.Where("form_id = ? AND is_active = ?", formID, true).
			Order("is_default DESC, id ASC").
			First(&cfg).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		cfg = DefaultConfig(formID)
		return tx.Create(&cfg).Error
	})
	if err != nil {
		return nil, errInternal("failed to resolve embed config: " + err.Error())
	}
	return r.ByHash(cfg.APIHash)
}

// DefaultConfig is the permissive policy used for lazily created embed
// channels: open CORS, no captcha, validation on, empty mapping.
func DefaultConfig(formID uint) models.FormAPIConfig {
	return models.FormAPIConfig{
		FormID:            formID,
		APIHash:           NewAPIHash(),
		APIKey:            NewAPIKey(),
		IsActive:          true,
		IsDefault:         true,
		CORSEnabled:       false,
		CaptchaEnabled:    false,
		HoneypotField:     models.DefaultHoneypotField,
		ValidationEnabled: true,
		ResponseType:      models.ResponseTypeJSON,
		SuccessMessage:    "Thanks! Your submission has been received.",
	}
}

func NewAPIHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewAPIKey() string {
	return "sk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
