package handlers

import (
	"net/http"
	"time"

	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

type commentAuthor struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type commentView struct {
	ID        uint           `json:"id"`
	PostID    uint           `json:"post_id"`
	UserID    uint           `json:"user_id"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	User      *commentAuthor `json:"user,omitempty"`
}

func viewComment(c models.Comment) commentView {
	v := commentView{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.User != nil {
		v.User = &commentAuthor{ID: c.User.ID, Name: c.User.Name}
	}
	return v
}

const resourceComment = "comment"

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	postID, err := idParam(r, "postId")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	var in service.CommentInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	c, err := h.comments.Create(r.Context(), actor(r), postID, in)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusCreated, "Comment added successfully!", response.Payload{
		"comment": map[string]any{"id": c.ID, "content": c.Content, "user_id": c.UserID},
	})
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID, err := idParam(r, "postId")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	comments, p, err := h.comments.List(r.Context(), postID, queryInt(r, "page"))
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	views := make([]commentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, viewComment(c))
	}
	response.JSON(w, http.StatusOK, "Comments fetched successfully!", response.Payload{"comments": views, "pagination": p})
}

func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	var in service.CommentInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	c, err := h.comments.Update(r.Context(), actor(r), id, in)
	if err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	response.JSON(w, http.StatusOK, "Comment updated successfully!", response.Payload{"comment": viewComment(*c)})
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	if err := h.comments.Delete(r.Context(), actor(r), id); err != nil {
		fail(w, r, err, resourceComment)
		return
	}
	response.JSON(w, http.StatusOK, "Comment deleted successfully!", nil)
}
