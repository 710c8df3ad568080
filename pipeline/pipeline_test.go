package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sheetform/SheetForm/models"
	"github.com/sheetform/SheetForm/sheets"
	"github.com/sheetform/SheetForm/spam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ConnectedSheet{},
		&models.Form{},
		&models.FormAPIConfig{},
		&models.APISubmission{},
		&models.APIUsageLog{},
	))
	t.Cleanup(func() {
		db.Exec("DELETE FROM api_usage_logs")
		db.Exec("DELETE FROM api_submissions")
		db.Exec("DELETE FROM form_api_configs")
		db.Exec("DELETE FROM forms")
		db.Exec("DELETE FROM connected_sheets")
		db.Exec("DELETE FROM users")
	})
	return db
}

type fakeSheetWriter struct {
	calls  int
	err    error
	labels []string
	values map[string]string
}

func (f *fakeSheetWriter) Write(ctx context.Context, tokens sheets.TokenSourceFunc, spreadsheetID, sheetName string, labels []string, values map[string]string) error {
	f.calls++
	f.labels = labels
	f.values = values
	return f.err
}

type fakeVerifier struct {
	ok       bool
	err      error
	gotToken string
}

func (f *fakeVerifier) Verify(ctx context.Context, captchaType, secret, token, remoteIP string) (bool, error) {
	f.gotToken = token
	return f.ok, f.err
}

type fixture struct {
	user models.User
	form models.Form
	cfg  models.FormAPIConfig
}

// newFixture creates a user, a three-field form and an active external
// config. mutate tweaks the config before it is persisted.
func newFixture(t *testing.T, db *gorm.DB, mutate func(*models.FormAPIConfig)) *fixture {
	t.Helper()
	f := &fixture{}

	f.user = models.User{
		Email: fmt.Sprintf("owner-%s@example.com", uuid.NewString()[:8]),
		Name:  "Owner",
	}
	require.NoError(t, db.Create(&f.user).Error)

	f.form = models.Form{
		UserID:   f.user.ID,
		Title:    "Contact",
		IsActive: true,
	}
	require.NoError(t, f.form.SetFields([]models.FormField{
		{Name: "name", Label: "Name", Type: "text", Required: true},
		{Name: "email", Label: "Email", Type: "email", Required: true},
		{Name: "message", Label: "Message", Type: "textarea"},
	}))
	require.NoError(t, db.Create(&f.form).Error)

	f.cfg = models.FormAPIConfig{
		FormID:            f.form.ID,
		APIHash:           NewAPIHash(),
		APIKey:            NewAPIKey(),
		IsActive:          true,
		CORSEnabled:       false,
		HoneypotField:     models.DefaultHoneypotField,
		ValidationEnabled: true,
		ResponseType:      models.ResponseTypeJSON,
		SuccessMessage:    "ok",
	}
	if mutate != nil {
		mutate(&f.cfg)
	}
	require.NoError(t, db.Create(&f.cfg).Error)
	return f
}

// connectSheet attaches a spreadsheet to the fixture's form so the
// pipeline attempts a sheet write.
func (f *fixture) connectSheet(t *testing.T, db *gorm.DB) {
	t.Helper()
	sheet := models.ConnectedSheet{
		UserID:        f.user.ID,
		SpreadsheetID: "ss-" + uuid.NewString()[:8],
		SheetName:     "Sheet1",
		Title:         "Contact responses",
	}
	require.NoError(t, db.Create(&sheet).Error)
	require.NoError(t, db.Model(&f.form).Update("connected_sheet_id", sheet.ID).Error)
}

func testPipeline(db *gorm.DB, w *fakeSheetWriter) *Pipeline {
	return &Pipeline{
		DB:             db,
		Writer:         w,
		Captcha:        &fakeVerifier{ok: true},
		Limiter:        spam.NewRateLimiter(6000, 1000),
		CaptchaTimeout: time.Second,
	}
}

func (f *fixture) request(payload map[string]interface{}) *Request {
	return &Request{
		Policy:  ExternalChannel,
		Hash:    f.cfg.APIHash,
		Payload: payload,
		IP:      "203.0.113.9",
		APIKey:  f.cfg.APIKey,
	}
}

func submissionCount(t *testing.T, db *gorm.DB, configID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.APISubmission{}).Where("config_id = ?", configID).Count(&n).Error)
	return n
}

func TestProcessResolve(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})

	t.Run("UnknownHash", func(t *testing.T) {
		_, perr := p.Process(context.Background(), &Request{Policy: ExternalChannel, Hash: "nope"})
		require.NotNil(t, perr)
		assert.Equal(t, 404, perr.Status())
	})

	t.Run("InactiveConfig", func(t *testing.T) {
		f := newFixture(t, db, func(c *models.FormAPIConfig) { c.IsActive = false })
		_, perr := p.Process(context.Background(), f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"}))
		require.NotNil(t, perr)
		assert.Equal(t, 404, perr.Status())
	})

	t.Run("InactiveForm", func(t *testing.T) {
		f := newFixture(t, db, nil)
		require.NoError(t, db.Model(&f.form).Update("is_active", false).Error)
		_, perr := p.Process(context.Background(), f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"}))
		require.NotNil(t, perr)
		assert.Equal(t, 404, perr.Status())
	})
}

func TestProcessAPIKey(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})
	f := newFixture(t, db, nil)

	req := f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"})
	req.APIKey = "sk_wrong"
	_, perr := p.Process(context.Background(), req)
	require.NotNil(t, perr)
	assert.Equal(t, 401, perr.Status())
	assert.EqualValues(t, 0, submissionCount(t, db, f.cfg.ID))
}

func TestProcessHoneypot(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})
	f := newFixture(t, db, nil)

	// An otherwise perfectly valid payload still gets rejected, and
	// nothing is stored.
	_, perr := p.Process(context.Background(), f.request(map[string]interface{}{
		"name":    "Ada",
		"email":   "a@b.com",
		"_gotcha": "I am a bot",
	}))
	require.NotNil(t, perr)
	assert.Equal(t, 403, perr.Status())
	assert.EqualValues(t, 0, submissionCount(t, db, f.cfg.ID))
}

func TestProcessValidation(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})

	t.Run("NamesEveryMissingField", func(t *testing.T) {
		f := newFixture(t, db, nil)
		_, perr := p.Process(context.Background(), f.request(map[string]interface{}{"message": "hi"}))
		require.NotNil(t, perr)
		assert.Equal(t, 400, perr.Status())
		assert.Contains(t, perr.Message, "name")
		assert.Contains(t, perr.Message, "email")
	})

	t.Run("ConfigRequiredFieldsOverrideSchema", func(t *testing.T) {
		f := newFixture(t, db, func(c *models.FormAPIConfig) {
			c.RequiredFields = []byte(`["email"]`)
		})
		_, perr := p.Process(context.Background(), f.request(map[string]interface{}{"email": "a@b.com"}))
		assert.Nil(t, perr)
	})

	t.Run("DisabledValidationAcceptsAnything", func(t *testing.T) {
		f := newFixture(t, db, func(c *models.FormAPIConfig) { c.ValidationEnabled = false })
		_, perr := p.Process(context.Background(), f.request(map[string]interface{}{}))
		assert.Nil(t, perr)
	})
}

func TestProcessCaptcha(t *testing.T) {
	db := setupTestDB(t)

	captchaCfg := func(c *models.FormAPIConfig) {
		c.CaptchaEnabled = true
		c.CaptchaType = models.CaptchaRecaptchaV2
		c.CaptchaSecret = "secret"
	}
	valid := func(f *fixture, token string) map[string]interface{} {
		payload := map[string]interface{}{"name": "Ada", "email": "a@b.com"}
		if token != "" {
			payload["g-recaptcha-response"] = token
		}
		return payload
	}

	t.Run("MissingToken", func(t *testing.T) {
		p := testPipeline(db, &fakeSheetWriter{})
		f := newFixture(t, db, captchaCfg)
		_, perr := p.Process(context.Background(), f.request(valid(f, "")))
		require.NotNil(t, perr)
		assert.Equal(t, 400, perr.Status())
	})

	t.Run("InvalidToken", func(t *testing.T) {
		p := testPipeline(db, &fakeSheetWriter{})
		p.Captcha = &fakeVerifier{ok: false}
		f := newFixture(t, db, captchaCfg)
		_, perr := p.Process(context.Background(), f.request(valid(f, "tok")))
		require.NotNil(t, perr)
		assert.Equal(t, 403, perr.Status())
		assert.EqualValues(t, 0, submissionCount(t, db, f.cfg.ID))
	})

	t.Run("ValidTokenStrippedFromStoredPayload", func(t *testing.T) {
		verifier := &fakeVerifier{ok: true}
		p := testPipeline(db, &fakeSheetWriter{})
		p.Captcha = verifier
		f := newFixture(t, db, captchaCfg)

		res, perr := p.Process(context.Background(), f.request(valid(f, "tok")))
		require.Nil(t, perr)
		assert.Equal(t, "tok", verifier.gotToken)

		stored, err := res.Submission.PayloadMap()
		require.NoError(t, err)
		assert.NotContains(t, stored, "g-recaptcha-response")
		assert.Equal(t, "Ada", stored["name"])
	})
}

func TestProcessRateLimit(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})
	p.Limiter = spam.NewRateLimiter(1, 1)
	f := newFixture(t, db, nil)

	payload := func() map[string]interface{} {
		return map[string]interface{}{"name": "Ada", "email": "a@b.com"}
	}
	_, perr := p.Process(context.Background(), f.request(payload()))
	assert.Nil(t, perr)

	_, perr = p.Process(context.Background(), f.request(payload()))
	require.NotNil(t, perr)
	assert.Equal(t, 403, perr.Status())
}

func TestProcessAccepted(t *testing.T) {
	db := setupTestDB(t)

	t.Run("NoConnectedSheetIsSkipped", func(t *testing.T) {
		p := testPipeline(db, &fakeSheetWriter{})
		f := newFixture(t, db, nil)

		res, perr := p.Process(context.Background(), f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"}))
		require.Nil(t, perr)
		assert.False(t, res.Sheet.Written)
		require.NotNil(t, res.Sheet.Error)
		assert.Equal(t, "no connected sheet", *res.Sheet.Error)

		var sub models.APISubmission
		require.NoError(t, db.First(&sub, res.Submission.ID).Error)
		assert.Equal(t, models.WriteStatusSkipped, sub.WriteStatus)
	})

	t.Run("SheetFailureStillAccepts", func(t *testing.T) {
		w := &fakeSheetWriter{err: &sheets.WriteError{Reason: sheets.ReasonQuota}}
		p := testPipeline(db, w)
		f := newFixture(t, db, nil)
		f.connectSheet(t, db)

		res, perr := p.Process(context.Background(), f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"}))
		require.Nil(t, perr)
		assert.False(t, res.Sheet.Written)
		require.NotNil(t, res.Sheet.Error)
		assert.Equal(t, sheets.ReasonQuota, *res.Sheet.Error)

		// Exactly one row, failed but kept.
		assert.EqualValues(t, 1, submissionCount(t, db, f.cfg.ID))
		var sub models.APISubmission
		require.NoError(t, db.First(&sub, res.Submission.ID).Error)
		assert.Equal(t, models.WriteStatusFailed, sub.WriteStatus)
		assert.Equal(t, sheets.ReasonQuota, sub.WriteError)
	})

	t.Run("SheetSuccess", func(t *testing.T) {
		w := &fakeSheetWriter{}
		p := testPipeline(db, w)
		f := newFixture(t, db, func(c *models.FormAPIConfig) {
			c.FieldMapping = []byte(`[{"from":"fullname","to":"name"}]`)
		})
		f.connectSheet(t, db)

		res, perr := p.Process(context.Background(), f.request(map[string]interface{}{
			"fullname": "Ada",
			"email":    "a@b.com",
			"tags":     []interface{}{"alpha", "beta"},
		}))
		require.Nil(t, perr)
		assert.True(t, res.Sheet.Written)
		assert.Nil(t, res.Sheet.Error)
		assert.Equal(t, 1, w.calls)

		// Schema labels in declared order, extras after.
		assert.Equal(t, []string{"Name", "Email", "Message", "tags"}, w.labels)
		assert.Equal(t, "Ada", w.values["Name"])
		assert.Equal(t, "alpha, beta", w.values["tags"])

		var sub models.APISubmission
		require.NoError(t, db.First(&sub, res.Submission.ID).Error)
		assert.Equal(t, models.WriteStatusWritten, sub.WriteStatus)

		// The mapping was applied before storage.
		stored, err := sub.PayloadMap()
		require.NoError(t, err)
		assert.Equal(t, "Ada", stored["name"])
		assert.NotContains(t, stored, "fullname")
	})
}

func TestProcessCORSDecision(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})

	f := newFixture(t, db, func(c *models.FormAPIConfig) {
		c.CORSEnabled = true
		c.AllowedOrigins = []byte(`["https://a.com"]`)
	})

	req := f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"})
	req.Origin = "https://b.com"
	res, perr := p.Process(context.Background(), req)

	// A disallowed origin never blocks the submission, it only withholds
	// the allow-origin header.
	require.Nil(t, perr)
	assert.Equal(t, "", res.AllowOrigin)
	assert.EqualValues(t, 1, submissionCount(t, db, f.cfg.ID))
}

func TestEnsureEmbedConfig(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})
	f := newFixture(t, db, nil)

	// Drop the fixture config so the embed channel has to create one.
	require.NoError(t, db.Unscoped().Delete(&f.cfg).Error)

	embedReq := func() *Request {
		return &Request{
			Policy:  EmbedChannel,
			FormID:  f.form.ID,
			Payload: map[string]interface{}{"name": "Ada", "email": "a@b.com"},
			IP:      "203.0.113.9",
		}
	}

	res, perr := p.Process(context.Background(), embedReq())
	require.Nil(t, perr)
	require.NotNil(t, res.Config)
	assert.True(t, res.Config.IsDefault)
	assert.Equal(t, models.ChannelEmbed, res.Submission.Channel)

	// Second submission reuses the lazily created config.
	res2, perr := p.Process(context.Background(), embedReq())
	require.Nil(t, perr)
	assert.Equal(t, res.Config.ID, res2.Config.ID)

	var n int64
	require.NoError(t, db.Model(&models.FormAPIConfig{}).Where("form_id = ?", f.form.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestProcessUsageLog(t *testing.T) {
	db := setupTestDB(t)
	p := testPipeline(db, &fakeSheetWriter{})
	f := newFixture(t, db, nil)

	p.Process(context.Background(), f.request(map[string]interface{}{"name": "Ada", "email": "a@b.com"}))
	p.Process(context.Background(), f.request(map[string]interface{}{"_gotcha": "bot"}))

	var logs []models.APIUsageLog
	require.NoError(t, db.Where("config_id = ?", f.cfg.ID).Order("id ASC").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, 200, logs[0].StatusCode)
	assert.Equal(t, 403, logs[1].StatusCode)
	assert.NotEmpty(t, logs[1].ErrorMsg)
}
