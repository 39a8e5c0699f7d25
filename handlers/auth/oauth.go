package auth

import (
	"car-management/handlers"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const stateCookie = "oauth_state"

// identity is what a provider tells us about the user after the code
// exchange.
type identity struct {
	Subject string
	Email   string
	Name    string
}

// OAuthProvider signs users in through an external authorization server
// and hands them our own token pair.
type OAuthProvider struct {
	Name     string
	config   *oauth2.Config
	identify func(ctx context.Context, token *oauth2.Token) (identity, error)
}

const githubUserURL = "https://api.github.com/user"

// NewGitHubProvider configures GitHub OAuth login.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
	return newGitHubProvider(cfg, githubUserURL)
}

func newGitHubProvider(cfg *oauth2.Config, userURL string) *OAuthProvider {
	return &OAuthProvider{
		Name:   "github",
		config: cfg,
		identify: func(ctx context.Context, token *oauth2.Token) (identity, error) {
			resp, err := cfg.Client(ctx, token).Get(userURL)
			if err != nil {
				return identity{}, errors.Annotate(err, "failed to get user from github")
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return identity{}, errors.Errorf("github user lookup returned %s", resp.Status)
			}

			var user struct {
				ID    int64  `json:"id"`
				Login string `json:"login"`
				Name  string `json:"name"`
				Email string `json:"email"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
				return identity{}, errors.Annotate(err, "failed to decode github user")
			}
			name := user.Name
			if name == "" {
				name = user.Login
			}
			return identity{
				Subject: fmt.Sprintf("github:%d", user.ID),
				Email:   user.Email,
				Name:    name,
			}, nil
		},
	}
}

// NewOIDCProvider discovers issuerURL and configures OpenID Connect login.
func NewOIDCProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*OAuthProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create OIDC provider")
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}

	return &OAuthProvider{
		Name:   "oidc",
		config: cfg,
		identify: func(ctx context.Context, token *oauth2.Token) (identity, error) {
			rawIDToken, ok := token.Extra("id_token").(string)
			if !ok {
				return identity{}, errors.New("no id_token in token response")
			}
			idToken, err := verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return identity{}, errors.Annotate(err, "failed to verify ID token")
			}
			var claims struct {
				Email             string `json:"email"`
				Name              string `json:"name"`
				PreferredUsername string `json:"preferred_username"`
			}
			if err := idToken.Claims(&claims); err != nil {
				return identity{}, errors.Annotate(err, "failed to extract claims from ID token")
			}
			name := claims.Name
			if name == "" {
				name = claims.PreferredUsername
			}
			return identity{Subject: "oidc:" + idToken.Subject, Email: claims.Email, Name: name}, nil
		},
	}, nil
}

// HandleLogin redirects to the provider with a fresh state cookie.
func (p *OAuthProvider) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			http.Error(w, "Failed to generate state", http.StatusInternalServerError)
			return
		}
		state := hex.EncodeToString(b)
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/",
			Expires:  time.Now().Add(10 * time.Minute),
			HttpOnly: true,
			Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, p.config.AuthCodeURL(state), http.StatusTemporaryRedirect)
	}
}

// HandleCallback finishes the code exchange, logs the user in and
// redirects to the frontend with the tokens in the query string.
func (p *OAuthProvider) HandleCallback(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logrus.WithField("provider", p.Name)

		cookie, err := r.Cookie(stateCookie)
		if err != nil || cookie.Value == "" || cookie.Value != r.FormValue("state") {
			handlers.RenderMessage(w, r, http.StatusBadRequest, "Invalid OAuth state")
			return
		}
		code := r.FormValue("code")
		if code == "" {
			handlers.RenderMessage(w, r, http.StatusBadRequest, "Missing authorization code")
			return
		}

		token, err := p.config.Exchange(r.Context(), code)
		if err != nil {
			log.WithError(err).Error("Failed to exchange token")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		id, err := p.identify(r.Context(), token)
		if err != nil {
			log.WithError(err).Error("Failed to identify user")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		session, err := svc.ExternalLogin(r.Context(), id.Subject, id.Email, id.Name)
		if err != nil {
			log.WithError(err).Error("Failed to log in external user")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		q := url.Values{}
		q.Set("token", session.AccessToken)
		q.Set("refreshToken", session.RefreshToken)
		http.Redirect(w, r, "/?"+q.Encode(), http.StatusTemporaryRedirect)
	}
}
