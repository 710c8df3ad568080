package spam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sheetform/SheetForm/models"
)

// HoneypotTripped reports whether the hidden honeypot field carries a
// non-empty value. Legitimate browsers leave it blank; bots fill it.
func HoneypotTripped(payload map[string]interface{}, field string) bool {
	if field == "" {
		return false
	}
	value, ok := payload[field]
	if !ok {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []interface{}:
		return len(v) > 0
	case nil:
		return false
	default:
		return true
	}
}

// TokenField returns the payload key carrying the provider's response
// token for the given captcha type.
func TokenField(captchaType string) string {
	switch captchaType {
	case models.CaptchaHCaptcha:
		return "h-captcha-response"
	default:
		return "g-recaptcha-response"
	}
}

// Verifier checks a captcha response token against the provider.
type Verifier interface {
	Verify(ctx context.Context, captchaType, secret, token, remoteIP string) (bool, error)
}

const (
	recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	hcaptchaVerifyURL  = "https://hcaptcha.com/siteverify"
)

// HTTPVerifier calls the provider's siteverify endpoint. A network
// error or timeout counts as a failed verification upstream.
type HTTPVerifier struct {
	Client       *http.Client
	RecaptchaURL string
	HCaptchaURL  string
}

func NewHTTPVerifier() *HTTPVerifier {
	return &HTTPVerifier{
		Client:       &http.Client{Timeout: 10 * time.Second},
		RecaptchaURL: recaptchaVerifyURL,
		HCaptchaURL:  hcaptchaVerifyURL,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, captchaType, secret, token, remoteIP string) (bool, error) {
	endpoint := v.RecaptchaURL
	if captchaType == models.CaptchaHCaptcha {
		endpoint = v.HCaptchaURL
	}

	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha verifier returned status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Success, nil
}
