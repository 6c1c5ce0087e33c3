package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

const resourceImage = "image"

// uploadFields are the multipart field names accepted for image batches.
var uploadFields = []string{"images[]", "images"}

func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	postID, err := idParam(r, "postId")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}

	if limit := h.images.MaxRequestBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	// files beyond the in-memory budget spill to temp files
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "The upload is too large.")
			return
		}
		verr := &service.ValidationError{}
		if errors.Is(err, http.ErrNotMultipart) {
			verr.Add("images", "The images field is required.")
		} else {
			verr.Add("images", "The images failed to upload.")
		}
		fail(w, r, verr, resourcePost)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.FromContext(r.Context()).Warn("Failed to remove multipart temp files", "error", err)
		}
	}()

	var headers []*multipart.FileHeader
	for _, field := range uploadFields {
		headers = append(headers, r.MultipartForm.File[field]...)
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			fail(w, r, err, resourcePost)
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{Filename: fh.Filename, Size: fh.Size, Content: f})
	}

	images, err := h.images.Upload(r.Context(), actor(r), postID, files)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Images uploaded successfully!", response.Payload{"images": images})
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	postID, err := idParam(r, "postId")
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	images, err := h.images.List(r.Context(), postID)
	if err != nil {
		fail(w, r, err, resourcePost)
		return
	}
	response.JSON(w, http.StatusOK, "Image fetched successfully!!", response.Payload{"images": images})
}

func (h *Handler) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourceImage)
		return
	}
	img, thumbnail, err := h.images.SetPrimary(r.Context(), actor(r), id)
	if err != nil {
		fail(w, r, err, resourceImage)
		return
	}
	payload := response.Payload{"image": img}
	if thumbnail != "" {
		payload["thumbnail"] = thumbnail
	}
	response.JSON(w, http.StatusOK, "Primary image set successfully", payload)
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err, resourceImage)
		return
	}
	if err := h.images.Delete(r.Context(), actor(r), id); err != nil {
		fail(w, r, err, resourceImage)
		return
	}
	response.JSON(w, http.StatusOK, "Image deleted successfully", nil)
}
