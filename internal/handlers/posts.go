package handlers

import (
	"net/http"

	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

const resourcePost = "post"

func pageFrom(r *http.Request) service.Page {
	return service.Page{Number: queryInt(r, "page"), Limit: queryInt(r, "limit")}
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, p, err := h.posts.List(r.Context(), pageFrom(r))
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Posts fetched successfully!!", response.Payload{"posts": posts, "pagination": p})
}

func (h *Handler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := service.SearchFilters{
		Title:   q.Get("title"),
		Content: q.Get("content"),
		Author:  q.Get("author"),
	}
	posts, p, err := h.posts.Search(r.Context(), filters, pageFrom(r))
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Posts fetched successfully!!", response.Payload{"posts": posts, "pagination": p})
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePostInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	post, err := h.posts.Create(r.Context(), actor(r), in)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusCreated, "Post created successfully!!", response.Payload{"post": post})
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	post, err := h.posts.Get(r.Context(), actor(r), id)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Post fetched successfully!!", response.Payload{"post": post})
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	var in service.UpdatePostInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	post, err := h.posts.Update(r.Context(), actor(r), id, in)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Post updated successfully!!", response.Payload{"post": post})
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	post, err := h.posts.Delete(r.Context(), actor(r), id)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Post deleted successfully!!", response.Payload{"post": post})
}
