package handlers

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

// RequestLogger attaches a request-scoped logger to the context and logs each request once.
func RequestLogger(base logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.ContextWithLogger(r.Context(), log)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			if status >= http.StatusInternalServerError {
				log.Error("request", kv...)
				return
			}
			log.Info("request", kv...)
		})
	}
}

// Recoverer turns a panicking handler into a logged 500 envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			logger.FromContext(r.Context()).Error("Recovered from panic",
				"panic", fmt.Sprint(rvr),
				"stack", string(debug.Stack()),
			)
			if r.Header.Get("Connection") != "Upgrade" {
				response.Error(w, http.StatusInternalServerError, response.MsgInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimited answers requests rejected by the /auth rate limit.
func RateLimited(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusTooManyRequests, "Too many requests.")
}

// CORS allows the configured origins. Patterns may be "*", an exact origin, "*.example.com"
// for one subdomain level or "**.example.com" for any depth.
func CORS(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowedOrigin(origin, patterns) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Requested-With")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, p := range patterns {
		if matchOrigin(u, p) {
			return true
		}
	}
	return false
}

func matchOrigin(origin *url.URL, pattern string) bool {
	if pattern == "*" {
		return true
	}
	host := pattern
	if scheme, rest, ok := strings.Cut(pattern, "://"); ok {
		if scheme != origin.Scheme {
			return false
		}
		host = rest
	}
	host = strings.TrimRight(host, "/")
	switch {
	case strings.HasPrefix(host, "**."):
		return strings.HasSuffix(origin.Host, host[2:])
	case strings.HasPrefix(host, "*."):
		sub, ok := strings.CutSuffix(origin.Host, host[1:])
		return ok && sub != "" && !strings.Contains(sub, ".")
	default:
		return origin.Host == host
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter throttles login attempts per client IP with a token bucket.
type LoginLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

// NewLoginLimiter allows burst attempts, refilled at one per second.
func NewLoginLimiter(burst int) *LoginLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &LoginLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Second),
		burst:    burst,
		ttl:      5 * time.Minute,
	}
}

func (l *LoginLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	// drop idle visitors while we hold the lock
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(clientIP(r)).Allow() {
			response.Error(w, http.StatusTooManyRequests, "Too many login attempts. Please wait a moment.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
