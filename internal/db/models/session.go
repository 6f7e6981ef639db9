package models

import "time"

// Session is a browser session. ID is sha256(cookie token) in hex; the
// raw token never reaches the store.
type Session struct {
	ID        string    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// SessionAccount links a session to an account it may use. Position keeps
// the order in which accounts were connected.
type SessionAccount struct {
	SessionID  string `gorm:"primaryKey"`
	AccountKey string `gorm:"primaryKey;index"`
	Position   int
	CreatedAt  time.Time
}
