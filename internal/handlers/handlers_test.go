package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/internal/database"
	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/internal/storage"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

type noThumbs struct{}

func (noThumbs) Thumbnail(src []byte) ([]byte, error) { return src, nil }

type testAPI struct {
	t      *testing.T
	db     *gorm.DB
	router chi.Router
	users  *service.UserService
}

// apiSetup is what a test may change before the router is built.
type apiSetup struct {
	router    RouterConfig
	maxUpload int64
}

func newTestAPI(t *testing.T, opts ...func(*apiSetup)) *testAPI {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedRoles(db))

	files := storage.NewDiskFs(afero.NewMemMapFs(), "http://localhost:3000")
	policy := auth.NewPolicy(models.RoleAdmin)
	users := service.NewUserService(db)
	setup := apiSetup{
		router: RouterConfig{
			Logger:      logger.NewForTests(),
			CorsOrigins: []string{"https://*.example.com"},
			LoginBurst:  100,
			Files:       files.Handler(),
		},
		maxUpload: 2 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(&setup)
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:     "handler-test-secret",
		TTL:        time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, auth.NewGormDenylist(db), users)

	h := New(Services{
		Users:    users,
		Posts:    service.NewPostService(db, policy, files, service.Pager{DefaultLimit: 10, MaxLimit: 100}),
		Comments: service.NewCommentService(db, policy),
		Images:   service.NewImageService(db, policy, files, noThumbs{}, setup.maxUpload),
		Tokens:   tokens,
	})
	router := NewRouter(h, setup.router)
	return &testAPI{t: t, db: db, router: router, users: users}
}

type apiResponse struct {
	Code int
	Body map[string]any
}

func (a *testAPI) do(method, path, token string, body any) apiResponse {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.serve(req)
}

func (a *testAPI) serve(req *http.Request) apiResponse {
	a.t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	out := apiResponse{Code: rec.Code}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	return out
}

// signup registers a user and logs in, returning the bearer token and user id.
func (a *testAPI) signup(username string) (string, uint) {
	a.t.Helper()
	res := a.do(http.MethodPost, "/auth/register", "", map[string]string{
		"name":                  username,
		"username":              username,
		"email":                 username + "@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	})
	require.Equal(a.t, http.StatusCreated, res.Code, res.Body)
	id := uint(res.Body["user"].(map[string]any)["id"].(float64))

	res = a.do(http.MethodPost, "/auth/login", "", map[string]string{"login": username, "password": "password123"})
	require.Equal(a.t, http.StatusOK, res.Code, res.Body)
	return res.Body["access_token"].(string), id
}

func (a *testAPI) promote(id uint) {
	a.t.Helper()
	_, err := a.users.AssignRoles(context.Background(), id, service.AssignRolesInput{Roles: []string{models.RoleAdmin}})
	require.NoError(a.t, err)
}

func (a *testAPI) createPost(token, title string) uint {
	a.t.Helper()
	res := a.do(http.MethodPost, "/auth/posts", token, map[string]string{"title": title, "content": "body of " + title})
	require.Equal(a.t, http.StatusCreated, res.Code, res.Body)
	return uint(res.Body["post"].(map[string]any)["id"].(float64))
}

func assertEnvelope(t *testing.T, res apiResponse, ok bool) {
	t.Helper()
	assert.Equal(t, ok, res.Body["success"])
	assert.Equal(t, !ok, res.Body["error"])
	assert.IsType(t, "", res.Body["message"])
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Should reject a short username", func(t *testing.T) {
		res := api.do(http.MethodPost, "/auth/register", "", map[string]string{
			"name":                  "Jo",
			"username":              "short",
			"email":                 "jo@example.com",
			"password":              "password123",
			"password_confirmation": "password123",
		})
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assertEnvelope(t, res, false)
		errs := res.Body["errors"].(map[string]any)
		assert.Contains(t, errs, "username")
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{"))
		res := api.serve(req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	api.signup("adminuser")

	t.Run("Should answer 401 for a wrong password", func(t *testing.T) {
		res := api.do(http.MethodPost, "/auth/login", "", map[string]string{
			"login": "adminuser@example.com", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assertEnvelope(t, res, false)
		assert.Equal(t, "Incorrect username or password", res.Body["message"])
	})

	t.Run("Should log in with the email too", func(t *testing.T) {
		res := api.do(http.MethodPost, "/auth/login", "", map[string]string{
			"login": "adminuser@example.com", "password": "password123",
		})
		assert.Equal(t, http.StatusOK, res.Code)
		assertEnvelope(t, res, true)
		assert.Equal(t, "bearer", res.Body["token_type"])
		assert.Equal(t, float64(3600), res.Body["expires_in"])
		assert.NotEmpty(t, res.Body["token_created_at"])
	})

	t.Run("Should describe the current user", func(t *testing.T) {
		tok, _ := api.signup("whoami")
		res := api.do(http.MethodPost, "/auth/me", tok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		user := res.Body["user"].(map[string]any)
		assert.Equal(t, "whoami", user["username"])
		assert.NotContains(t, user, "password_hash")
	})

	t.Run("Should refuse requests without a token", func(t *testing.T) {
		res := api.do(http.MethodGet, "/auth/posts", "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assertEnvelope(t, res, false)
	})

	t.Run("Should revoke the token on logout", func(t *testing.T) {
		tok, _ := api.signup("leaving")
		res := api.do(http.MethodPost, "/auth/logout", tok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		assertEnvelope(t, res, true)

		res = api.do(http.MethodGet, "/auth/posts", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("Should swap the token on refresh", func(t *testing.T) {
		tok, _ := api.signup("refresher")
		res := api.do(http.MethodPost, "/auth/refresh", tok, nil)
		require.Equal(t, http.StatusOK, res.Code)
		fresh := res.Body["access_token"].(string)

		assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/auth/posts", tok, nil).Code)
		assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/auth/posts", fresh, nil).Code)
		assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/auth/refresh", tok, nil).Code)
	})

	t.Run("Should restrict role assignment to admins", func(t *testing.T) {
		userTok, userID := api.signup("plainuser")
		res := api.do(http.MethodPut, fmt.Sprintf("/auth/users/%d/roles", userID), userTok,
			map[string][]string{"roles": {models.RoleAdmin}})
		assert.Equal(t, http.StatusForbidden, res.Code)
		assert.Equal(t, "Unauthorized", res.Body["message"])

		adminTok, adminID := api.signup("realadmin")
		api.promote(adminID)
		res = api.do(http.MethodPut, fmt.Sprintf("/auth/users/%d/roles", userID), adminTok,
			map[string][]string{"roles": {models.RoleAdmin}})
		assert.Equal(t, http.StatusOK, res.Code)
		roles := res.Body["user"].(map[string]any)["roles"].([]any)
		assert.Equal(t, []any{models.RoleAdmin}, roles)
	})
}

func TestPostRoutes(t *testing.T) {
	api := newTestAPI(t)
	authorTok, _ := api.signup("postauthor")
	otherTok, _ := api.signup("otherwriter")
	adminTok, adminID := api.signup("siteadmin")
	api.promote(adminID)

	t.Run("Should return only matching posts from search", func(t *testing.T) {
		api.createPost(authorTok, "Foobar")
		api.createPost(authorTok, "Baz")

		res := api.do(http.MethodGet, "/auth/posts/search?title=Foo", authorTok, nil)
		require.Equal(t, http.StatusOK, res.Code)
		posts := res.Body["posts"].([]any)
		require.Len(t, posts, 1)
		assert.Equal(t, "Foobar", posts[0].(map[string]any)["title"])
		assert.Equal(t, float64(1), res.Body["pagination"].(map[string]any)["total"])
	})

	t.Run("Should paginate the listing", func(t *testing.T) {
		res := api.do(http.MethodGet, "/auth/posts?page=1&limit=1", authorTok, nil)
		require.Equal(t, http.StatusOK, res.Code)
		assert.Len(t, res.Body["posts"].([]any), 1)
		p := res.Body["pagination"].(map[string]any)
		assert.Equal(t, float64(1), p["per_page"])
		assert.Equal(t, float64(2), p["last_page"])
	})

	t.Run("Should collapse missing and foreign posts into 401", func(t *testing.T) {
		id := api.createPost(authorTok, "Private")
		res := api.do(http.MethodGet, fmt.Sprintf("/auth/posts/%d", id), otherTok, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "Unauthorized user or post not available", res.Body["message"])

		res = api.do(http.MethodGet, "/auth/posts/99999", authorTok, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "Unauthorized user or post not available", res.Body["message"])
	})

	t.Run("Should refuse to blank out a post on PATCH", func(t *testing.T) {
		id := api.createPost(authorTok, "Kept")
		path := fmt.Sprintf("/auth/posts/%d", id)

		res := api.do(http.MethodPatch, path, authorTok, map[string]string{"title": ""})
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assertEnvelope(t, res, false)
		assert.Contains(t, res.Body["errors"], "title")

		res = api.do(http.MethodPatch, path, authorTok, map[string]string{"content": ""})
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Contains(t, res.Body["errors"], "content")

		res = api.do(http.MethodGet, path, authorTok, nil)
		require.Equal(t, http.StatusOK, res.Code)
		post := res.Body["post"].(map[string]any)
		assert.Equal(t, "Kept", post["title"])
		assert.Equal(t, "body of Kept", post["content"])
	})

	t.Run("Should let an admin edit and delete any post", func(t *testing.T) {
		id := api.createPost(authorTok, "Moderated")
		res := api.do(http.MethodPatch, fmt.Sprintf("/auth/posts/%d", id), adminTok, map[string]string{"title": "Edited"})
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "Edited", res.Body["post"].(map[string]any)["title"])

		res = api.do(http.MethodPatch, fmt.Sprintf("/auth/posts/%d", id), otherTok, map[string]string{"title": "Nope"})
		assert.Equal(t, http.StatusUnauthorized, res.Code)

		res = api.do(http.MethodDelete, fmt.Sprintf("/auth/posts/%d", id), adminTok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		assertEnvelope(t, res, true)
	})
}

func TestCommentRoutes(t *testing.T) {
	api := newTestAPI(t)
	authorTok, _ := api.signup("postauthor")
	commenterTok, _ := api.signup("commenter")
	postID := api.createPost(authorTok, "Discussed")

	t.Run("Should answer 404 for a post with no comments", func(t *testing.T) {
		res := api.do(http.MethodGet, fmt.Sprintf("/auth/posts/%d/comments", postID), authorTok, nil)
		assert.Equal(t, http.StatusNotFound, res.Code)
		assert.Equal(t, "No comments found for this post.", res.Body["message"])
	})

	var commentID uint
	t.Run("Should add and list comments", func(t *testing.T) {
		res := api.do(http.MethodPost, fmt.Sprintf("/auth/posts/%d/comments", postID), commenterTok,
			map[string]string{"content": "first"})
		require.Equal(t, http.StatusCreated, res.Code, res.Body)
		commentID = uint(res.Body["comment"].(map[string]any)["id"].(float64))

		res = api.do(http.MethodGet, fmt.Sprintf("/auth/posts/%d/comments", postID), authorTok, nil)
		require.Equal(t, http.StatusOK, res.Code)
		comments := res.Body["comments"].([]any)
		require.Len(t, comments, 1)
		user := comments[0].(map[string]any)["user"].(map[string]any)
		assert.Equal(t, "commenter", user["name"])
	})

	t.Run("Should let only the comment author delete it", func(t *testing.T) {
		res := api.do(http.MethodDelete, fmt.Sprintf("/auth/comments/%d", commentID), authorTok, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assertEnvelope(t, res, false)

		res = api.do(http.MethodDelete, fmt.Sprintf("/auth/comments/%d", commentID), commenterTok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		assertEnvelope(t, res, true)
	})
}

func multipartImages(t *testing.T, field string, n int) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i := 0; i < n; i++ {
		part, err := mw.CreateFormFile(field, fmt.Sprintf("pic%d.png", i))
		require.NoError(t, err)
		_, err = part.Write(img.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestImageRoutes(t *testing.T) {
	api := newTestAPI(t)
	authorTok, _ := api.signup("postauthor")
	postID := api.createPost(authorTok, "Gallery")

	body, contentType := multipartImages(t, "images[]", 2)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/auth/posts/%d/images", postID), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+authorTok)
	res := api.serve(req)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	images := res.Body["images"].([]any)
	require.Len(t, images, 2)
	first := images[0].(map[string]any)
	imageID := uint(first["id"].(float64))

	t.Run("Should serve uploaded files", func(t *testing.T) {
		url := first["url"].(string)
		path := url[len("http://localhost:3000"):]
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Should set the primary image", func(t *testing.T) {
		res := api.do(http.MethodPut, fmt.Sprintf("/auth/images/%d/primary", imageID), authorTok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, true, res.Body["image"].(map[string]any)["is_primary"])
		assert.NotEmpty(t, res.Body["thumbnail"])
	})

	t.Run("Should list and delete images", func(t *testing.T) {
		res := api.do(http.MethodGet, fmt.Sprintf("/auth/posts/%d/images", postID), authorTok, nil)
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Len(t, res.Body["images"].([]any), 2)

		res = api.do(http.MethodDelete, fmt.Sprintf("/auth/images/%d", imageID), authorTok, nil)
		assert.Equal(t, http.StatusOK, res.Code)

		res = api.do(http.MethodDelete, fmt.Sprintf("/auth/images/%d", imageID), authorTok, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "Unauthorized user or image not available", res.Body["message"])
	})
}

func TestImageUploadLimits(t *testing.T) {
	api := newTestAPI(t, func(s *apiSetup) { s.maxUpload = 1024 })
	authorTok, _ := api.signup("postauthor")
	postID := api.createPost(authorTok, "Heavy")
	path := fmt.Sprintf("/auth/posts/%d/images", postID)

	t.Run("Should refuse a body larger than a full batch", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("images[]", "huge.png")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte{0x89}, 256<<10))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, path, &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+authorTok)
		res := api.serve(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
		assertEnvelope(t, res, false)
	})

	t.Run("Should refuse more files than a batch allows", func(t *testing.T) {
		body, contentType := multipartImages(t, "images[]", service.MaxUploadBatch+1)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+authorTok)
		res := api.serve(req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Contains(t, res.Body["errors"], "images")
	})
}

func TestCORS(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/posts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/auth/posts", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		origin  string
		pattern string
		want    bool
	}{
		{"https://app.example.com", "*", true},
		{"https://app.example.com", "https://app.example.com", true},
		{"https://app.example.com", "*.example.com", true},
		{"https://a.b.example.com", "*.example.com", false},
		{"https://a.b.example.com", "**.example.com", true},
		{"http://app.example.com", "https://*.example.com", false},
		{"https://example.com", "*.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin+" "+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, allowedOrigin(tt.origin, []string{tt.pattern}))
		})
	}
}

func TestLoginLimiter(t *testing.T) {
	l := NewLoginLimiter(2)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRouterEnvelopes(t *testing.T) {
	t.Run("Should wrap rate limited requests in the envelope", func(t *testing.T) {
		api := newTestAPI(t, func(s *apiSetup) {
			s.router.RateLimit = true
			s.router.RateRequests = 1
			s.router.RateWindow = time.Minute
		})
		creds := map[string]string{"login": "nobody", "password": "password123"}

		res := api.do(http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, res.Code)

		res = api.do(http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
		assertEnvelope(t, res, false)
		assert.Equal(t, "Too many requests.", res.Body["message"])
	})

	t.Run("Should answer a panicking handler with a 500 envelope", func(t *testing.T) {
		api := newTestAPI(t)
		api.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		})

		res := api.do(http.MethodGet, "/boom", "", nil)
		assert.Equal(t, http.StatusInternalServerError, res.Code)
		assertEnvelope(t, res, false)
		assert.Equal(t, "Internal server error.", res.Body["message"])
	})
}
