package dto

import "time"

// SessionCreateRequest starts a session from a platform issued token.
type SessionCreateRequest struct {
	Token string `json:"token" validate:"required,jwt"`
}

// SessionResponse describes the active session without echoing the token.
type SessionResponse struct {
	UserID    string     `json:"user_id"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
