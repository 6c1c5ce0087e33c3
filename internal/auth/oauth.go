package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

type OAuthConfig struct {
	GoogleKey    string
	GoogleSecret string
	CallbackBase string
	SessionKey   string
	Secure       bool
}

// SetupOAuth registers the Google provider and the cookie store gothic keeps its state in.
func SetupOAuth(cfg OAuthConfig) {
	goth.UseProviders(google.New(cfg.GoogleKey, cfg.GoogleSecret, cfg.CallbackBase+"/auth/oauth/google/callback", "email", "profile"))

	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	store.MaxAge(86400 * 30)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.Secure
	gothic.Store = store
}

// WithProvider tells gothic which provider the request is for.
func WithProvider(r *http.Request, provider string) *http.Request {
	return gothic.GetContextWithProvider(r, provider)
}

// BeginOAuth redirects to the provider, or returns the user when the session already holds one.
func BeginOAuth(w http.ResponseWriter, r *http.Request) (goth.User, bool) {
	if user, err := gothic.CompleteUserAuth(w, r); err == nil {
		return user, true
	}
	gothic.BeginAuthHandler(w, r)
	return goth.User{}, false
}

// CompleteOAuth finishes the provider round trip and returns the external user.
func CompleteOAuth(w http.ResponseWriter, r *http.Request) (goth.User, error) {
	return gothic.CompleteUserAuth(w, r)
}
