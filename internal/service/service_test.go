package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/internal/database"
	"github.com/petermazzocco/go-blog-api/internal/storage"
	"github.com/petermazzocco/go-blog-api/models"
)

type fixture struct {
	db       *gorm.DB
	fs       afero.Fs
	files    *storage.Disk
	users    *UserService
	posts    *PostService
	comments *CommentService
	images   *ImageService
	thumbs   *fakeThumbnailer
}

type fakeThumbnailer struct {
	err error
}

func (f *fakeThumbnailer) Thumbnail(src []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("thumb:"), src[:4]...), nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "blog.db")})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedRoles(db))

	fs := afero.NewMemMapFs()
	files := storage.NewDiskFs(fs, "http://localhost:3000")
	policy := auth.NewPolicy(models.RoleAdmin)
	thumbs := &fakeThumbnailer{}
	users := NewUserService(db)
	users.cost = bcrypt.MinCost
	return &fixture{
		db:       db,
		fs:       fs,
		files:    files,
		users:    users,
		posts:    NewPostService(db, policy, files, Pager{DefaultLimit: 10, MaxLimit: 100}),
		comments: NewCommentService(db, policy),
		images:   NewImageService(db, policy, files, thumbs, 2*1024*1024),
		thumbs:   thumbs,
	}
}

// register creates a user and returns it as an actor.
func (f *fixture) register(t *testing.T, username string) auth.Actor {
	t.Helper()
	u, err := f.users.Register(context.Background(), RegisterInput{
		Name:                 username,
		Username:             username,
		Email:                username + "@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	require.NoError(t, err)
	return auth.ActorFromUser(u)
}

func (f *fixture) admin(t *testing.T) auth.Actor {
	t.Helper()
	actor := f.register(t, "administrator")
	u, err := f.users.AssignRoles(context.Background(), actor.ID, AssignRolesInput{Roles: []string{models.RoleAdmin}})
	require.NoError(t, err)
	return auth.ActorFromUser(u)
}

func (f *fixture) post(t *testing.T, author auth.Actor, title string) *models.Post {
	t.Helper()
	p, err := f.posts.Create(context.Background(), author, CreatePostInput{Title: title, Content: "content of " + title})
	require.NoError(t, err)
	return p
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func pngUpload(t *testing.T, name string) UploadFile {
	data := pngBytes(t)
	return UploadFile{Filename: name, Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}
