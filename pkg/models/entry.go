package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Source labels for entries
const (
	SourceChat   = "chat"
	SourceImport = "import"
	SourceAI     = "ai"
)

// Entry is one logged learning item. Entries are append-only.
type Entry struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Content       string    `json:"content" db:"content"`
	Category      *Category `json:"category,omitempty" db:"category"`
	Difficulty    *int      `json:"difficulty,omitempty" db:"difficulty"` // 1-5
	Confidence    *int      `json:"confidence,omitempty" db:"confidence"` // 1-5
	Tags          Tags      `json:"tags" db:"tags"`
	Source        string    `json:"source" db:"source"`
	IsAIGenerated bool      `json:"is_ai_generated" db:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// EntryOptions enumerates every optional field accepted when creating an entry
type EntryOptions struct {
	Category      *Category `validate:"omitempty,oneof=tech science creative language business health general"`
	Difficulty    *int      `validate:"omitempty,min=1,max=5"`
	Confidence    *int      `validate:"omitempty,min=1,max=5"`
	Tags          []string  `validate:"dive,max=64"`
	Source        string    `validate:"omitempty,max=32"`
	IsAIGenerated bool
}

// WithDefaults returns a copy of the options with defaults applied
func (o EntryOptions) WithDefaults() EntryOptions {
	if o.Source == "" {
		o.Source = SourceChat
	}
	o.Tags = NewTags(o.Tags...)
	return o
}

// WorkLog is the result of a completed /log dialog
type WorkLog struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Work      string    `json:"work" db:"work"`
	Learned   string    `json:"learned" db:"learned"`
	Blockers  string    `json:"blockers" db:"blockers"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Turn is one question/answer pair of an AI dialog
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// Tags is a set of lower-cased strings stored as a JSON array
type Tags []string

// NewTags normalizes, deduplicates and sorts the given tags
func NewTags(tags ...string) Tags {
	cleaned := lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		return tag, tag != ""
	})
	out := Tags(lo.Uniq(cleaned))
	sort.Strings(out)
	return out
}

// Value implements driver.Valuer
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		t = Tags{}
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (t *Tags) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported tags type %T", src)
	}
	if len(data) == 0 {
		*t = Tags{}
		return nil
	}
	var parsed []string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse tags: %w", err)
	}
	*t = Tags(parsed)
	return nil
}
