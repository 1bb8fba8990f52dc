package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"
)

const adminSessionCookie = "admin_session"

func bearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// adminKeyMatches compares in constant time. An unset admin key never matches.
func adminKeyMatches(candidate, adminKey string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(adminKey)) == 1
}

func remoteHost(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

func hostIsLoopback(host string) bool {
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

// isAdmin accepts a live session cookie, the admin key as a bearer token, or a
// loopback peer when allow_localhost_no_auth is set.
func (s *Server) isAdmin(r *http.Request) bool {
	if s.cfg.AllowLocalhostNoAuth && hostIsLoopback(remoteHost(r)) {
		return true
	}
	if adminKeyMatches(bearerToken(r.Header), s.cfg.AdminKey) {
		return true
	}
	c, err := r.Cookie(adminSessionCookie)
	if err != nil {
		return false
	}
	return s.sessions.Valid(c.Value, s.now())
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionCookie(r *http.Request, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     adminSessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(ttl.Seconds()),
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}
