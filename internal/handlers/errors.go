package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

const msgNoComments = "No comments found for this post."

// fail maps a service error onto the response envelope. resource names the thing that was
// missing or not owned, e.g. "post".
func fail(w http.ResponseWriter, r *http.Request, err error, resource string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithPayload(w, http.StatusBadRequest, response.MsgValidation, response.Payload{"errors": verr.Fields})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, "Incorrect username or password")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized, "Unauthorized user or "+resource+" not available")
	case errors.Is(err, service.ErrNoComments):
		// listed as a successful lookup with nothing in it
		response.JSON(w, http.StatusNotFound, msgNoComments, nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrRefreshExpired):
		response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
	default:
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, response.MsgInternal)
	}
}

// decodeJSON reads the request body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	verr := &service.ValidationError{}
	verr.Add("body", "The request body must be valid JSON.")
	return verr
}

// idParam parses a positive integer route parameter. Anything else reads as a missing resource.
func idParam(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, service.ErrNotFound
	}
	return uint(id), nil
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

// actor returns the authenticated user as an authorization actor.
func actor(r *http.Request) auth.Actor {
	user, _ := auth.UserFromContext(r.Context())
	return auth.ActorFromUser(user)
}
