package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/config"
	"github.com/pysugar/command-center/internal/util"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/api/auth/google/callback"

// DefaultUserInfoURL returns the signed-in user's email and name.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Scopes requested for every connected account.
var Scopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/contacts.readonly",
	"https://www.googleapis.com/auth/drive.readonly",
}

// OAuthConfig returns the OAuth2 config for the given client credentials.
// Client credentials always travel in the form body, so a refresh is a
// single request to the token endpoint.
func OAuthConfig(g config.GoogleConfig, redirectURL string) *oauth2.Config {
	scopes := Scopes
	if len(g.Scopes) > 0 {
		scopes = g.Scopes
	}
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   googleOAuth.Endpoint.AuthURL,
			TokenURL:  googleOAuth.Endpoint.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// FetchProfile asks Google who owns tok.
func FetchProfile(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, userInfoURL string) (accounts.Profile, error) {
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}
	client := cfg.Client(ctx, tok)
	resp, err := client.Get(userInfoURL)
	if err != nil {
		return accounts.Profile{}, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return accounts.Profile{}, fmt.Errorf("get user info: status %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return accounts.Profile{}, fmt.Errorf("decode user info: %w", err)
	}
	if userInfo.Email == "" {
		return accounts.Profile{}, fmt.Errorf("user info has no email (token %s)", util.MaskToken(tok.AccessToken))
	}
	return accounts.Profile{Email: userInfo.Email, Name: userInfo.Name}, nil
}
