package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sheetform/SheetForm/config"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/models"
	"golang.org/x/oauth2"
)

// OwnerTokenSource returns an oauth2 token source acting as the given
// user, for sheet writes performed on their behalf. With forceRefresh
// the cached access token is discarded so the next Token call hits
// Google's refresh endpoint.
func OwnerTokenSource(ctx context.Context, user *models.User, forceRefresh bool) (oauth2.TokenSource, error) {
	if user.RefreshToken == "" && user.AccessToken == "" {
		return nil, fmt.Errorf("user %d has no stored Google credential", user.ID)
	}
	tok := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       user.TokenExpiry,
		TokenType:    "Bearer",
	}
	if forceRefresh {
		tok.AccessToken = ""
		tok.Expiry = time.Now().Add(-time.Minute)
	}
	src := config.GoogleOauthConfig.TokenSource(ctx, tok)
	return &persistingSource{src: src, userID: user.ID, last: user.AccessToken}, nil
}

// persistingSource writes refreshed tokens back to the user row so the
// next request starts from a live access token.
type persistingSource struct {
	src    oauth2.TokenSource
	userID uint
	last   string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		updates := map[string]interface{}{
			"access_token": tok.AccessToken,
			"token_expiry": tok.Expiry,
		}
		if tok.RefreshToken != "" {
			updates["refresh_token"] = tok.RefreshToken
		}
		if err := db.DB.Model(&models.User{}).Where("id = ?", p.userID).Updates(updates).Error; err != nil {
			// Losing the persisted token is survivable, the refresh
			// token still works next time.
			log.Printf("failed to persist refreshed token for user %d: %v", p.userID, err)
		}
	}
	return tok, nil
}
