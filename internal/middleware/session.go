package middleware

import (
	"net/http"
	"strings"
)

// Headers and cookies carrying the session and CSRF token
const (
	SessionIDHeader = "X-Session-ID"
	SessionIDCookie = "session_id"
	CSRFTokenHeader = "X-CSRF-Token"
)

// SessionIDFromRequest returns the session id presented by the client, from
// the X-Session-ID header or the session_id cookie.
func SessionIDFromRequest(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get(SessionIDHeader)); sid != "" {
		return sid
	}
	if cookie, err := r.Cookie(SessionIDCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
