// Package handlers exposes the blog services over HTTP.
package handlers

import (
	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/service"
)

type Handler struct {
	users    *service.UserService
	posts    *service.PostService
	comments *service.CommentService
	images   *service.ImageService
	tokens   *auth.TokenService
}

type Services struct {
	Users    *service.UserService
	Posts    *service.PostService
	Comments *service.CommentService
	Images   *service.ImageService
	Tokens   *auth.TokenService
}

func New(s Services) *Handler {
	return &Handler{
		users:    s.Users,
		posts:    s.Posts,
		comments: s.Comments,
		images:   s.Images,
		tokens:   s.Tokens,
	}
}
