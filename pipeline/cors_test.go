package pipeline

import (
	"net/http/httptest"
	"testing"

	"github.com/sheetform/SheetForm/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func corsConfig(enabled bool, origins string) *models.FormAPIConfig {
	return &models.FormAPIConfig{
		CORSEnabled:    enabled,
		AllowedOrigins: datatypes.JSON(origins),
	}
}

func TestResolveAllowOrigin(t *testing.T) {
	t.Run("DisabledDefaultsOpen", func(t *testing.T) {
		cfg := corsConfig(false, ``)
		assert.Equal(t, "*", ResolveAllowOrigin(cfg, "https://anywhere.com"))
	})

	t.Run("WildcardInList", func(t *testing.T) {
		cfg := corsConfig(true, `["*"]`)
		assert.Equal(t, "*", ResolveAllowOrigin(cfg, "https://a.com"))
	})

	t.Run("MatchingOriginEchoed", func(t *testing.T) {
		cfg := corsConfig(true, `["https://a.com"]`)
		assert.Equal(t, "https://a.com", ResolveAllowOrigin(cfg, "https://a.com"))
	})

	t.Run("UnlistedOriginGetsNothing", func(t *testing.T) {
		cfg := corsConfig(true, `["https://a.com"]`)
		assert.Equal(t, "", ResolveAllowOrigin(cfg, "https://b.com"))
	})

	t.Run("EmptyOriginNeverEchoed", func(t *testing.T) {
		cfg := corsConfig(true, `["https://a.com"]`)
		assert.Equal(t, "", ResolveAllowOrigin(cfg, ""))
	})
}

func TestApplyCORS(t *testing.T) {
	t.Run("SetsHeadersForAllowedOrigin", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ApplyCORS(rr, corsConfig(true, `["https://a.com"]`), "https://a.com")
		assert.Equal(t, "https://a.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rr.Header().Get("Vary"))
	})

	t.Run("OmitsHeaderForDisallowedOrigin", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ApplyCORS(rr, corsConfig(true, `["https://a.com"]`), "https://b.com")
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("WildcardSkipsVary", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ApplyCORS(rr, corsConfig(false, ``), "https://b.com")
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rr.Header().Get("Vary"))
	})
}

func TestPreflight(t *testing.T) {
	t.Run("Always200", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Preflight(rr, corsConfig(true, `["https://a.com"]`), "https://b.com")
		assert.Equal(t, 200, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("NilConfigAnswersOpen", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Preflight(rr, nil, "https://a.com")
		assert.Equal(t, 200, rr.Code)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
