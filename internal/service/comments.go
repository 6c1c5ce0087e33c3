package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/models"
)

// CommentsPerPage is the fixed page size for comment listings.
const CommentsPerPage = 10

type CommentInput struct {
	Content string `json:"content" validate:"required,max=500"`
}

type CommentService struct {
	db     *gorm.DB
	policy *auth.Policy
}

func NewCommentService(db *gorm.DB, policy *auth.Policy) *CommentService {
	return &CommentService{db: db, policy: policy}
}

func (s *CommentService) Create(ctx context.Context, actor auth.Actor, postID uint, in CommentInput) (*models.Comment, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.postExists(ctx, postID); err != nil {
		return nil, err
	}
	comment := &models.Comment{PostID: postID, UserID: actor.ID, Content: in.Content}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// List pages through a post's comments with their authors. A post without comments reports
// ErrNoComments rather than an empty page.
func (s *CommentService) List(ctx context.Context, postID uint, pageNumber int) ([]models.Comment, Pagination, error) {
	if err := s.postExists(ctx, postID); err != nil {
		return nil, Pagination{}, err
	}
	page := Pager{DefaultLimit: CommentsPerPage, MaxLimit: CommentsPerPage}.Normalize(Page{Number: pageNumber})

	var comments []models.Comment
	p, err := paginate(s.db.WithContext(ctx).Model(&models.Comment{}).Where("post_id = ?", postID), page, &comments,
		func(q *gorm.DB) *gorm.DB {
			return q.Preload("User", func(q *gorm.DB) *gorm.DB { return q.Select("id", "name") }).Order("id ASC")
		})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list comments: %w", err)
	}
	if p.Total == 0 {
		return nil, p, ErrNoComments
	}
	return comments, p, nil
}

func (s *CommentService) Update(ctx context.Context, actor auth.Actor, id uint, in CommentInput) (*models.Comment, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	comment, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(comment).Update("content", in.Content).Error; err != nil {
		return nil, fmt.Errorf("update comment %d: %w", id, err)
	}
	comment.Content = in.Content
	return comment, nil
}

func (s *CommentService) Delete(ctx context.Context, actor auth.Actor, id uint) error {
	comment, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(comment).Error; err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}

// load fetches a comment the actor owns.
func (s *CommentService) load(ctx context.Context, actor auth.Actor, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := s.db.WithContext(ctx).Take(&comment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load comment %d: %w", id, err)
	}
	if !s.policy.CanModifyComment(actor, &comment) {
		return nil, ErrUnauthorized
	}
	return &comment, nil
}

func (s *CommentService) postExists(ctx context.Context, postID uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return fmt.Errorf("check post %d: %w", postID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
