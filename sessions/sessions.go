package sessions

import "time"

// Session is an authenticated browser session. One active session per
// browser context; destroyed on logout or expiry.
type Session struct {
	ID         string
	Subject    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Persistent bool // "remember me" - survives the browser context
}

// Expired reports whether the session's absolute timeout has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
