package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/imaging"
	"github.com/petermazzocco/go-blog-api/internal/storage"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/svg+xml"}

const (
	// MaxUploadBatch is the most files one upload request may carry.
	MaxUploadBatch = 10

	multipartOverhead = 64 << 10
)

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

type ImageService struct {
	db       *gorm.DB
	policy   *auth.Policy
	files    storage.Storage
	thumbs   imaging.Thumbnailer
	maxBytes int64
}

func NewImageService(db *gorm.DB, policy *auth.Policy, files storage.Storage, thumbs imaging.Thumbnailer, maxBytes int64) *ImageService {
	return &ImageService{db: db, policy: policy, files: files, thumbs: thumbs, maxBytes: maxBytes}
}

type checkedFile struct {
	UploadFile
	mime *mimetype.MIME
}

// Upload stores every file and records it as a non-primary image of the post. The batch is
// validated as a whole before anything is written.
func (s *ImageService) Upload(ctx context.Context, actor auth.Actor, postID uint, files []UploadFile) ([]models.Image, error) {
	if _, err := s.loadPost(ctx, actor, postID); err != nil {
		return nil, err
	}
	checked, err := s.check(files)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	images := make([]models.Image, 0, len(checked))
	for _, f := range checked {
		key := fmt.Sprintf("images/posts/%d/%s%s", postID, uuid.NewString(), f.mime.Extension())
		if err := s.files.Put(ctx, key, f.Content, f.mime.String()); err != nil {
			s.discard(ctx, images)
			return nil, fmt.Errorf("store %s: %w", f.Filename, err)
		}
		img := models.Image{
			PostID:   postID,
			Key:      key,
			URL:      s.files.URL(key),
			MimeType: f.mime.String(),
		}
		if err := s.db.WithContext(ctx).Create(&img).Error; err != nil {
			log.Error("Stored image has no database row", "key", key, "post_id", postID, "error", err)
			removeStored(ctx, s.files, key)
			s.discard(ctx, images)
			return nil, fmt.Errorf("record image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// discard undoes the part of a failed batch already written. Anything that cannot be
// removed is logged with its key.
func (s *ImageService) discard(ctx context.Context, images []models.Image) {
	if len(images) == 0 {
		return
	}
	ids := make([]uint, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	if err := s.db.WithContext(ctx).Delete(&models.Image{}, ids).Error; err != nil {
		keys := make([]string, len(images))
		for i, img := range images {
			keys[i] = img.Key
		}
		logger.FromContext(ctx).Error("Kept images from a failed upload", "ids", ids, "keys", keys, "error", err)
		return
	}
	for _, img := range images {
		removeStored(ctx, s.files, img.Key)
	}
}

// MaxRequestBytes bounds an upload request body: a full batch of files at the size limit plus
// room for multipart framing. Zero means no limit.
func (s *ImageService) MaxRequestBytes() int64 {
	if s.maxBytes <= 0 {
		return 0
	}
	return s.maxBytes*MaxUploadBatch + multipartOverhead
}

func (s *ImageService) check(files []UploadFile) ([]checkedFile, error) {
	verr := &ValidationError{}
	if len(files) == 0 {
		verr.Add("images", "The images field is required.")
		return nil, verr
	}
	if len(files) > MaxUploadBatch {
		verr.Add("images", fmt.Sprintf("The images field must not have more than %d items.", MaxUploadBatch))
		return nil, verr
	}
	out := make([]checkedFile, 0, len(files))
	for i, f := range files {
		field := fmt.Sprintf("images.%d", i)
		if s.maxBytes > 0 && f.Size > s.maxBytes {
			verr.Add(field, fmt.Sprintf("The %s field must not be greater than %d kilobytes.", field, s.maxBytes/1024))
			continue
		}
		mime, err := mimetype.DetectReader(f.Content)
		if err != nil {
			return nil, fmt.Errorf("detect type of %s: %w", f.Filename, err)
		}
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind %s: %w", f.Filename, err)
		}
		if !mimetype.EqualsAny(mime.String(), allowedImageTypes...) {
			verr.Add(field, fmt.Sprintf("The %s field must be a file of type: jpeg, png, jpg, gif, svg.", field))
			continue
		}
		out = append(out, checkedFile{UploadFile: f, mime: mime})
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the post's images, oldest first. A post with no images yields an empty list.
func (s *ImageService) List(ctx context.Context, postID uint) ([]models.Image, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check post %d: %w", postID, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	images := []models.Image{}
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("id ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// SetPrimary makes the image the only primary image of its post and renders its thumbnail.
// The flag switch is one UPDATE over the post's images, so concurrent calls cannot leave two
// primaries. A failed thumbnail is logged and returns an empty URL.
func (s *ImageService) SetPrimary(ctx context.Context, actor auth.Actor, imageID uint) (*models.Image, string, error) {
	img, err := s.loadImage(ctx, actor, imageID)
	if err != nil {
		return nil, "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Image{}).
			Where("post_id = ?", img.PostID).
			Update("is_primary", gorm.Expr("id = ?", img.ID))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, "", err
	}
	if err != nil {
		return nil, "", fmt.Errorf("set primary image %d: %w", imageID, err)
	}
	img.IsPrimary = true

	return img, s.thumbnail(ctx, img), nil
}

func (s *ImageService) thumbnail(ctx context.Context, img *models.Image) string {
	if s.thumbs == nil {
		return ""
	}
	log := logger.FromContext(ctx).With("image_id", img.ID, "key", img.Key)

	rc, err := s.files.Get(ctx, img.Key)
	if err != nil {
		log.Warn("Failed to read image for thumbnail", "error", err)
		return ""
	}
	src, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		log.Warn("Failed to read image for thumbnail", "error", err)
		return ""
	}
	thumb, err := s.thumbs.Thumbnail(src)
	if err != nil {
		log.Warn("Failed to generate thumbnail", "error", err)
		return ""
	}
	key := thumbnailKey(img.Key)
	if err := s.files.Put(ctx, key, bytes.NewReader(thumb), img.MimeType); err != nil {
		log.Warn("Failed to store thumbnail", "error", err)
		return ""
	}
	return s.files.URL(key)
}

// Delete removes the image row, then its files. Missing or unremovable files do not fail the call.
func (s *ImageService) Delete(ctx context.Context, actor auth.Actor, imageID uint) error {
	img, err := s.loadImage(ctx, actor, imageID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(img).Error; err != nil {
		return fmt.Errorf("delete image %d: %w", imageID, err)
	}
	removeStored(ctx, s.files, img.Key)
	removeStored(ctx, s.files, thumbnailKey(img.Key))
	return nil
}

func (s *ImageService) loadPost(ctx context.Context, actor auth.Actor, postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Take(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if !s.policy.CanModifyPost(actor, &post) {
		return nil, ErrUnauthorized
	}
	return &post, nil
}

// loadImage fetches an image whose post the actor may modify.
func (s *ImageService) loadImage(ctx context.Context, actor auth.Actor, imageID uint) (*models.Image, error) {
	var img models.Image
	err := s.db.WithContext(ctx).Take(&img, imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load image %d: %w", imageID, err)
	}
	if _, err := s.loadPost(ctx, actor, img.PostID); err != nil {
		return nil, err
	}
	return &img, nil
}

func thumbnailKey(key string) string {
	if key == "" {
		return ""
	}
	return "thumbnails/" + path.Base(key)
}
