package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// limiterWait bounds how long a webhook waits for a rate limit token.
const limiterWait = 250 * time.Millisecond

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("panic serving %s %s (req=%s): %v", r.Method, r.URL.Path, requestIDFrom(r.Context()), rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.opts.Debug || rec.status >= http.StatusInternalServerError {
			s.logger.Printf("%s %s status=%d remote=%s req=%s dur=%s",
				r.Method, r.URL.Path, rec.status, remoteIP(r.RemoteAddr), requestIDFrom(r.Context()), time.Since(start))
		}
	})
}

// authMiddleware enforces the bearer token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tracker"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			ctx, cancel := context.WithTimeout(r.Context(), limiterWait)
			err := s.limiter.Wait(ctx)
			cancel()
			if err != nil {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// simpleLimiter is a minimal token bucket limiter
type simpleLimiter struct {
	tokens    chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

func newSimpleLimiter(rps, burst int) *simpleLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rps
	}
	l := &simpleLimiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	// initially fill bucket
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	// refill goroutine
	go func() {
		interval := time.Second / time.Duration(rps)
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
					// bucket full
				}
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

func (l *simpleLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return errors.New("limiter stopped")
	case <-l.tokens:
		return nil
	}
}

func (l *simpleLimiter) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() { close(l.stop) })
}

// remoteIP extracts ip from host:port
func remoteIP(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}
