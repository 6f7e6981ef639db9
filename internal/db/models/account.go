package models

import "time"

// Account status values.
const (
	AccountActive         = "active"
	AccountReauthRequired = "reauth_required"
)

// Account is one connected Google identity together with its token
// record. Key is the email with every non-alphanumeric character removed.
type Account struct {
	Key          string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	Name         string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero means the provider gave no expiry
	Status       string    `gorm:"default:active"`
	Scopes       string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BlacklistedAccount records a disconnected email so background imports
// do not silently reconnect it.
type BlacklistedAccount struct {
	Email     string `gorm:"primaryKey"`
	Reason    string
	CreatedAt time.Time
}
