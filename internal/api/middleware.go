package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dnac-sync/internal/metrics"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	authInfoKey  contextKey = "auth"
)

// AuthenticationInfo describes how a request was authenticated
type AuthenticationInfo struct {
	Subject   string
	Method    string // "api_key", "jwt", "disabled"
	ExpiresAt *time.Time
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func authInfoFrom(ctx context.Context) *AuthenticationInfo {
	info, _ := ctx.Value(authInfoKey).(*AuthenticationInfo)
	return info
}

// responseWriter captures the status code and size of a response
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// Hijack lets the websocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not support hijacking")
}

// routeTemplate returns the matched mux path template so metrics labels stay bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// loggingMiddleware assigns a request id and logs every request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := routeTemplate(r)
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(wrapped.statusCode), duration)

		entry := s.logger.WithFields(logrus.Fields{
			"request_id":    requestID,
			"method":        r.Method,
			"path":          r.URL.Path,
			"endpoint":      endpoint,
			"status":        wrapped.statusCode,
			"response_size": wrapped.size,
			"duration_ms":   duration.Milliseconds(),
			"client_ip":     getClientIP(r),
			"user_agent":    r.UserAgent(),
		})

		switch {
		case wrapped.statusCode >= 500:
			entry.Error("HTTP request")
		case wrapped.statusCode >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	})
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error":      err,
					"stack":      string(debug.Stack()),
					"path":       r.URL.Path,
					"method":     r.Method,
					"request_id": requestIDFrom(r.Context()),
				}).Error("Panic recovered in HTTP handler")

				s.writeError(w, r, ErrorCodeInternalError, "Internal Server Error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// clientLimiters holds one token bucket per client address
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastGC   time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(requestsPerMin, burst int) *clientLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiters{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		lastGC:   time.Now(),
	}
}

// reserve takes a token for the client. When none is left it returns false
// and how long the client should wait.
func (cl *clientLimiters) reserve(key string) (bool, time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.Sub(cl.lastGC) > cl.idleTTL {
		for k, entry := range cl.limiters {
			if now.Sub(entry.lastSeen) > cl.idleTTL {
				delete(cl.limiters, k)
			}
		}
		cl.lastGC = now
	}

	entry, ok := cl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.limiters[key] = entry
	}
	entry.lastSeen = now

	if entry.limiter.AllowN(now, 1) {
		return true, 0
	}

	var wait time.Duration
	if cl.limit > 0 {
		wait = time.Duration(float64(time.Second) / float64(cl.limit))
	}
	return false, wait
}

// rateLimitMiddleware applies a per-client token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if !s.config.APIServer.RateLimit.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := getClientIP(r)

		allowed, wait := s.limiters.reserve(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.config.APIServer.RateLimit.RequestsPerMin))

		if !allowed {
			metrics.RecordRateLimitHit(routeTemplate(r))
			s.logSecurityEvent("rate_limit_exceeded", key, r)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			s.writeError(w, r, ErrorCodeRateLimitExceeded, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticationMiddleware accepts an API key or a JWT bearer token
func (s *Server) authenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.APIServer.Auth.Enabled {
			info := &AuthenticationInfo{Method: "disabled"}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authInfoKey, info)))
			return
		}

		info := s.authenticate(r)
		if info == nil {
			s.logSecurityEvent("auth_failed", getClientIP(r), r)
			s.writeError(w, r, ErrorCodeUnauthorized, "Authentication required")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"method":    info.Method,
			"subject":   info.Subject,
			"path":      r.URL.Path,
			"client_ip": getClientIP(r),
		}).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authInfoKey, info)))
	})
}

func (s *Server) authenticate(r *http.Request) *AuthenticationInfo {
	auth := s.config.APIServer.Auth

	bearer := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		bearer = strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades
	if bearer == "" && r.URL.Path == "/api/v1/ws" {
		bearer = r.URL.Query().Get("token")
	}

	if key := r.Header.Get("X-API-Key"); key != "" && validAPIKey(key, auth.APIKeys) {
		return &AuthenticationInfo{Method: "api_key"}
	}
	if bearer != "" && validAPIKey(bearer, auth.APIKeys) {
		return &AuthenticationInfo{Method: "api_key"}
	}
	if bearer != "" && auth.JWTSecret != "" {
		return validateJWT(bearer, auth.JWTSecret)
	}

	return nil
}

func validAPIKey(key string, allowed []string) bool {
	for _, allowedKey := range allowed {
		if subtle.ConstantTimeCompare([]byte(key), []byte(allowedKey)) == 1 {
			return true
		}
	}
	return false
}

// validateJWT checks an HMAC signed token. Expired tokens are rejected by the parser.
func validateJWT(tokenString, secret string) *AuthenticationInfo {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		return nil
	}

	info := &AuthenticationInfo{Method: "jwt", Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		expires := claims.ExpiresAt.Time
		info.ExpiresAt = &expires
	}
	return info
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}

// logSecurityEvent logs security-related events
func (s *Server) logSecurityEvent(event, clientIP string, r *http.Request) {
	s.logger.WithFields(logrus.Fields{
		"event":      event,
		"client_ip":  clientIP,
		"path":       r.URL.Path,
		"method":     r.Method,
		"user_agent": r.UserAgent(),
		"request_id": requestIDFrom(r.Context()),
	}).Warn("Security event")
}
