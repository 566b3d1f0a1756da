package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Default values applied to new users and to missing settings
const (
	DefaultQuizDay  = 0 // Sunday
	DefaultQuizTime = 18
	DefaultLocale   = "en"
	DefaultTimezone = "UTC"
)

// Bounds of a daily goal
const (
	MinDailyGoal = 1
	MaxDailyGoal = 50
)

// User represents a chat user of the diary bot
type User struct {
	ID           int64     `json:"id" db:"id"`               // Chat/user ID
	QuizDay      int       `json:"quiz_day" db:"quiz_day"`   // Day of week for the weekly review (0 = Sunday)
	QuizTime     int       `json:"quiz_time" db:"quiz_time"` // Hour of day for the weekly review (0-23)
	DailyGoal    *int      `json:"daily_goal,omitempty" db:"daily_goal"`
	Settings     Settings  `json:"settings" db:"settings"`
	JoinedAt     time.Time `json:"joined_at" db:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
}

// Settings holds per-user preferences, stored as a JSON column
type Settings struct {
	Notifications *bool  `json:"notifications,omitempty"`
	Locale        string `json:"locale,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// DefaultSettings returns settings with every default filled in
func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

// WithDefaults fills absent preferences
func (s Settings) WithDefaults() Settings {
	if s.Notifications == nil {
		enabled := true
		s.Notifications = &enabled
	}
	if s.Locale == "" {
		s.Locale = DefaultLocale
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	return s
}

// NotificationsEnabled reports the notifications flag, defaulting to true
func (s Settings) NotificationsEnabled() bool {
	return s.Notifications == nil || *s.Notifications
}

// Location returns the user's timezone, falling back to UTC for unknown names
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Value implements driver.Valuer
func (s Settings) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (s *Settings) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = DefaultSettings()
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported settings type %T", src)
	}

	var parsed Settings
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse settings: %w", err)
		}
	}
	*s = parsed.WithDefaults()
	return nil
}
