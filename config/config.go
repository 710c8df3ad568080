package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	GoogleOauthConfig *oauth2.Config
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	GoogleOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  BaseURL() + "/auth/google/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			// Sheet writes happen offline on behalf of the form owner,
			// so we need the spreadsheet scope and a refresh token.
			"https://www.googleapis.com/auth/spreadsheets",
			"https://www.googleapis.com/auth/drive.metadata.readonly",
		},
		Endpoint: google.Endpoint,
	}
}

// BaseURL is the externally visible address of this server, used in
// OAuth redirects, embed snippets and the API docs page.
func BaseURL() string {
	if url := os.Getenv("BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func FrontendURL() string {
	if url := os.Getenv("FRONTEND_URL"); url != "" {
		return url
	}
	return "http://localhost:3000"
}

// AuthCodeURL asks Google for offline access so the callback receives a
// refresh token the sheet writer can use later.
func AuthCodeURL(state string) string {
	return GoogleOauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func GenerateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := base64.URLEncoding.EncodeToString(b)
	cookie := &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Expires:  time.Now().Add(30 * time.Minute),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
	return state
}

func VerifyStateOauthCookie(r *http.Request) error {
	state := r.FormValue("state")
	cookie, err := r.Cookie("oauthstate")
	if err != nil {
		return err
	}
	if cookie.Value != state {
		return fmt.Errorf("invalid oauth state")
	}
	return nil
}
