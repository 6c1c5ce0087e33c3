package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

type RouterConfig struct {
	Logger      logger.Logger
	CorsOrigins []string
	// RateLimit enables the per-IP limit of RateRequests per RateWindow on /auth.
	RateLimit    bool
	RateRequests int
	RateWindow   time.Duration
	LoginBurst   int
	// OAuth mounts the external sign-in routes.
	OAuth bool
	// Files, when set, is served under /storage.
	Files http.Handler
}

func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger(nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer)
	r.Use(CORS(cfg.CorsOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	if cfg.Files != nil {
		r.Handle("/storage/*", http.StripPrefix("/storage", cfg.Files))
	}

	authenticated := auth.Authenticate(h.tokens)
	limiter := NewLoginLimiter(cfg.LoginBurst)

	r.Route("/auth", func(r chi.Router) {
		if cfg.RateLimit {
			r.Use(httprate.Limit(
				cfg.RateRequests,
				cfg.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
			httprate.WithLimitHandler(RateLimited),
			))
		}

		r.Post("/register", h.Register)
		r.With(limiter.Middleware).Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		if cfg.OAuth {
			r.Get("/oauth/{provider}", h.OAuthBegin)
			r.Get("/oauth/{provider}/callback", h.OAuthCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Post("/me", h.Me)
			r.Post("/logout", h.Logout)

			r.Get("/posts", h.ListPosts)
			r.Get("/posts/search", h.SearchPosts)
			r.Post("/posts", h.CreatePost)
			r.Get("/posts/{id}", h.GetPost)
			r.Patch("/posts/{id}", h.UpdatePost)
			r.Delete("/posts/{id}", h.DeletePost)

			r.Post("/posts/{postId}/comments", h.CreateComment)
			r.Get("/posts/{postId}/comments", h.ListComments)
			r.Patch("/comments/{id}", h.UpdateComment)
			r.Delete("/comments/{id}", h.DeleteComment)

			r.Post("/posts/{postId}/images", h.UploadImages)
			r.Get("/posts/{postId}/images", h.ListImages)
			r.Put("/images/{id}/primary", h.SetPrimaryImage)
			r.Delete("/images/{id}", h.DeleteImage)

			r.With(auth.RequireRole(models.RoleAdmin)).Put("/users/{id}/roles", h.AssignRoles)
		})
	})

	return r
}
