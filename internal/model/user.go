package model

import "time"

// User represents an account that owns links.
type User struct {
	ID               string      `json:"id" db:"id"`
	Name             string      `json:"name" db:"name"`
	Email            string      `json:"email" db:"email"`
	PasswordHash     string      `json:"-" db:"password_hash"`
	Preferences      Preferences `json:"preferences" db:"preferences"`
	LastDigestSentAt *time.Time  `json:"lastDigestSentAt" db:"last_digest_sent_at"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
}

// Preferences holds per-user settings. The digest fields drive the
// periodic click-digest scanner.
type Preferences struct {
	DarkMode        bool  `json:"darkMode"`
	EmailDigest     bool  `json:"emailDigest"`
	DigestThreshold int64 `json:"digestThreshold"`
}

// DefaultPreferences returns the preferences assigned to new accounts.
func DefaultPreferences() Preferences {
	return Preferences{
		DarkMode:        false,
		EmailDigest:     true,
		DigestThreshold: 100,
	}
}
