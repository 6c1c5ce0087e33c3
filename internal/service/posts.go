package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/storage"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

type CreatePostInput struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
}

// UpdatePostInput holds a partial update; nil fields are left untouched.
type UpdatePostInput struct {
	Title   *string `json:"title" validate:"omitnil,min=1,max=255"`
	Content *string `json:"content" validate:"omitnil,min=1"`
}

type SearchFilters struct {
	Title   string
	Content string
	Author  string
}

type PostService struct {
	db     *gorm.DB
	policy *auth.Policy
	files  storage.Storage
	pager  Pager
}

func NewPostService(db *gorm.DB, policy *auth.Policy, files storage.Storage, pager Pager) *PostService {
	return &PostService{db: db, policy: policy, files: files, pager: pager}
}

func (s *PostService) Create(ctx context.Context, actor auth.Actor, in CreatePostInput) (*models.Post, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	post := &models.Post{Title: in.Title, Content: in.Content, AuthorID: actor.ID}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// List returns posts newest first, each with its comments.
func (s *PostService) List(ctx context.Context, page Page) ([]models.Post, Pagination, error) {
	page = s.pager.Normalize(page)
	var posts []models.Post
	p, err := paginate(s.db.WithContext(ctx).Model(&models.Post{}), page, &posts, func(q *gorm.DB) *gorm.DB {
		return q.Preload("Comments").Order("created_at DESC").Order("id DESC")
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list posts: %w", err)
	}
	return posts, p, nil
}

// Get loads a post with its comments and images. Only the author or an admin may read it.
func (s *PostService) Get(ctx context.Context, actor auth.Actor, id uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Comments", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Images").
		Take(&post, id).Error
	if err := s.authorize(actor, &post, err); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostService) Update(ctx context.Context, actor auth.Actor, id uint, in UpdatePostInput) (*models.Post, error) {
	if in.Title == nil && in.Content == nil {
		verr := &ValidationError{}
		verr.Add("title", "The title field is required when content is not present.")
		verr.Add("content", "The content field is required when title is not present.")
		return nil, verr
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var post models.Post
	err := s.db.WithContext(ctx).Take(&post, id).Error
	if err := s.authorize(actor, &post, err); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Title != nil {
		updates["title"] = *in.Title
		post.Title = *in.Title
	}
	if in.Content != nil {
		updates["content"] = *in.Content
		post.Content = *in.Content
	}
	if err := s.db.WithContext(ctx).Model(&post).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}
	return &post, nil
}

// Delete removes the post with its comments and images. Stored files go after the commit;
// failures there are logged and do not undo the delete.
func (s *PostService) Delete(ctx context.Context, actor auth.Actor, id uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Take(&post, id).Error
	if err := s.authorize(actor, &post, err); err != nil {
		return nil, err
	}

	var images []models.Image
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Find(&images).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete post %d: %w", id, err)
	}

	for _, img := range images {
		removeStored(ctx, s.files, img.Key)
		removeStored(ctx, s.files, thumbnailKey(img.Key))
	}
	return &post, nil
}

// Search filters posts by case-insensitive substring on title and content. The author filter
// matches a numeric author id exactly or the author's username by substring.
func (s *PostService) Search(ctx context.Context, f SearchFilters, page Page) ([]models.Post, Pagination, error) {
	page = s.pager.Normalize(page)
	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN users ON users.id = posts.author_id")

	if t := strings.TrimSpace(f.Title); t != "" {
		q = q.Where("LOWER(posts.title) LIKE ? ESCAPE '\\'", likePattern(t))
	}
	if c := strings.TrimSpace(f.Content); c != "" {
		q = q.Where("LOWER(posts.content) LIKE ? ESCAPE '\\'", likePattern(c))
	}
	if a := strings.TrimSpace(f.Author); a != "" {
		if id, err := strconv.ParseUint(a, 10, 64); err == nil {
			q = q.Where("(posts.author_id = ? OR LOWER(users.username) LIKE ? ESCAPE '\\')", id, likePattern(a))
		} else {
			q = q.Where("LOWER(users.username) LIKE ? ESCAPE '\\'", likePattern(a))
		}
	}

	var posts []models.Post
	p, err := paginate(q, page, &posts, func(q *gorm.DB) *gorm.DB {
		return q.Select("posts.*").Preload("Author").Order("posts.created_at DESC").Order("posts.id DESC")
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("search posts: %w", err)
	}
	return posts, p, nil
}

// authorize folds a lookup error and the policy decision into the service errors.
func (s *PostService) authorize(actor auth.Actor, post *models.Post, lookupErr error) error {
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if lookupErr != nil {
		return fmt.Errorf("load post: %w", lookupErr)
	}
	if !s.policy.CanModifyPost(actor, post) {
		return ErrUnauthorized
	}
	return nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func removeStored(ctx context.Context, files storage.Storage, key string) {
	if key == "" {
		return
	}
	err := files.Delete(ctx, key)
	if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
		return
	}
	logger.FromContext(ctx).Warn("Failed to remove stored file", "key", key, "error", err)
}
