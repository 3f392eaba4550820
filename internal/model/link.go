package model

import "time"

// MaxClickHistory bounds the number of click events retained per link.
// Older events are evicted when a new click pushes the history past this.
const MaxClickHistory = 1000

// Link represents a shortened link owned by a user.
type Link struct {
	ID                  string     `json:"id" db:"id"`
	UserID              string     `json:"-" db:"user_id"`
	OriginalURL         string     `json:"originalUrl" db:"original_url"`
	Code                string     `json:"code" db:"code"`
	Clicks              int64      `json:"clicks" db:"clicks"`
	ExpiresAt           *time.Time `json:"expiresAt" db:"expires_at"`
	IsActive            bool       `json:"isActive" db:"is_active"`
	PasswordHash        *string    `json:"-" db:"password_hash"`
	IsPasswordProtected bool       `json:"isPasswordProtected" db:"is_password_protected"`
	RequirePreview      bool       `json:"requirePreview" db:"require_preview"`
	Tags                []string   `json:"tags" db:"tags"`
	Folder              string     `json:"folder" db:"folder"`
	LastNotifiedClicks  int64      `json:"-" db:"last_notified_clicks"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// ClickEvent is one recorded visit to a resolved link.
// Metadata fields are best-effort and may be empty.
type ClickEvent struct {
	ID        int64     `json:"-" db:"id"`
	LinkID    string    `json:"-" db:"link_id"`
	ClickedAt time.Time `json:"clickedAt" db:"clicked_at"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	Referrer  string    `json:"referrer" db:"referrer"`
}

// ClickMeta carries best-effort client metadata from the request into
// click recording.
type ClickMeta struct {
	IP        string
	UserAgent string
	Referrer  string
}

// IsExpired reports whether the link has passed its expiration time.
// Links without an expiration never expire.
func (l *Link) IsExpired() bool {
	if l.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*l.ExpiresAt)
}

// ClickTrend computes per-day click counts over the last days calendar
// days (today inclusive), oldest day first. It is a view over the retained
// click history, recomputed on every read — never a stored aggregate.
func ClickTrend(events []ClickEvent, days int) []int64 {
	trend := make([]int64, days)
	now := time.Now()
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		end := start.AddDate(0, 0, 1)
		for _, e := range events {
			t := e.ClickedAt.In(day.Location())
			if !t.Before(start) && t.Before(end) {
				trend[days-1-i]++
			}
		}
	}
	return trend
}
