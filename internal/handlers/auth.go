package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

func tokenPayload(tok auth.Token) response.Payload {
	return response.Payload{
		"access_token":     tok.AccessToken,
		"token_type":       tok.TokenType,
		"expires_in":       tok.ExpiresIn,
		"token_created_at": tok.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func userPayload(u *models.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"username":   u.Username,
		"email":      u.Email,
		"roles":      u.RoleNames(),
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, "user")
		return
	}
	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	response.JSON(w, http.StatusCreated, "User registered successfully.", response.Payload{"user": userPayload(user)})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, "user")
		return
	}
	user, err := h.users.Authenticate(r.Context(), in)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	h.respondWithToken(w, r, user, "Login successful.")
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, user *models.User, message string) {
	tok, err := h.tokens.Issue(user)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	response.JSON(w, http.StatusOK, message, tokenPayload(tok))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	response.JSON(w, http.StatusOK, "User fetched successfully.", response.Payload{"user": userPayload(user)})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, _ := auth.TokenFromContext(r.Context())
	if err := h.tokens.Revoke(r.Context(), raw); err != nil {
		fail(w, r, err, "user")
		return
	}
	response.JSON(w, http.StatusOK, "Successfully logged out", nil)
}

// Refresh takes the bearer token itself since an expired token is still refreshable.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := auth.BearerToken(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
		return
	}
	tok, err := h.tokens.Refresh(r.Context(), raw)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	response.JSON(w, http.StatusOK, "Token refreshed successfully.", tokenPayload(tok))
}

func (h *Handler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	var in service.AssignRolesInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, "user")
		return
	}
	user, err := h.users.AssignRoles(r.Context(), id, in)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	response.JSON(w, http.StatusOK, "Roles assigned successfully.", response.Payload{"user": userPayload(user)})
}

// OAuthBegin sends the browser to the provider, or signs in straight away when the gothic
// session already holds a completed login.
func (h *Handler) OAuthBegin(w http.ResponseWriter, r *http.Request) {
	r = auth.WithProvider(r, chi.URLParam(r, "provider"))
	ext, done := auth.BeginOAuth(w, r)
	if !done {
		return
	}
	h.oauthSignIn(w, r, ext.Name, ext.Email)
}

func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	r = auth.WithProvider(r, chi.URLParam(r, "provider"))
	ext, err := auth.CompleteOAuth(w, r)
	if err != nil {
		logger.FromContext(r.Context()).Warn("OAuth callback failed", "error", err)
		response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
		return
	}
	h.oauthSignIn(w, r, ext.Name, ext.Email)
}

func (h *Handler) oauthSignIn(w http.ResponseWriter, r *http.Request, name, email string) {
	user, err := h.users.FindOrCreateByEmail(r.Context(), name, email)
	if err != nil {
		fail(w, r, err, "user")
		return
	}
	h.respondWithToken(w, r, user, "Login successful.")
}
