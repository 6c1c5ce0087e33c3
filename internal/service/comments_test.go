package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	author := f.register(t, "postauthor")
	commenter := f.register(t, "commenter")
	admin := f.admin(t)
	post := f.post(t, author, "Discussed")

	t.Run("Should report no comments for an empty post", func(t *testing.T) {
		_, _, err := f.comments.List(ctx, post.ID, 1)
		assert.ErrorIs(t, err, ErrNoComments)
	})

	t.Run("Should report a missing post", func(t *testing.T) {
		_, err := f.comments.Create(ctx, commenter, 9999, CommentInput{Content: "hi"})
		assert.ErrorIs(t, err, ErrNotFound)
		_, _, err = f.comments.List(ctx, 9999, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should validate content", func(t *testing.T) {
		_, err := f.comments.Create(ctx, commenter, post.ID, CommentInput{Content: strings.Repeat("x", 501)})
		assert.Equal(t, []string{"The content field must not be greater than 500 characters."}, fieldErrors(t, err)["content"])
	})

	t.Run("Should page comments with their authors", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			_, err := f.comments.Create(ctx, commenter, post.ID, CommentInput{Content: "comment"})
			require.NoError(t, err)
		}
		comments, p, err := f.comments.List(ctx, post.ID, 2)
		require.NoError(t, err)
		assert.Len(t, comments, 2)
		assert.Equal(t, Pagination{CurrentPage: 2, PerPage: 10, Total: 12, LastPage: 2}, p)
		require.NotNil(t, comments[0].User)
		assert.Equal(t, commenter.ID, comments[0].User.ID)
		assert.Equal(t, "commenter", comments[0].User.Name)
	})

	t.Run("Should let only the owner change a comment", func(t *testing.T) {
		c, err := f.comments.Create(ctx, commenter, post.ID, CommentInput{Content: "mine"})
		require.NoError(t, err)

		_, err = f.comments.Update(ctx, author, c.ID, CommentInput{Content: "theirs"})
		assert.ErrorIs(t, err, ErrUnauthorized)
		// no admin override for comments
		_, err = f.comments.Update(ctx, admin, c.ID, CommentInput{Content: "theirs"})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, f.comments.Delete(ctx, admin, c.ID), ErrUnauthorized)

		updated, err := f.comments.Update(ctx, commenter, c.ID, CommentInput{Content: "edited"})
		require.NoError(t, err)
		assert.Equal(t, "edited", updated.Content)

		require.NoError(t, f.comments.Delete(ctx, commenter, c.ID))
		assert.ErrorIs(t, f.comments.Delete(ctx, commenter, c.ID), ErrNotFound)
	})
}
