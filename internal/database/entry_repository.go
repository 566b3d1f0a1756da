package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/pkg/models"
)

// ErrEmptyContent is returned when an entry has no text
var ErrEmptyContent = errors.New("entry content is empty")

// SearchLimit caps the number of search results
const SearchLimit = 20

const entryColumns = "id, user_id, content, category, difficulty, confidence, tags, source, is_ai_generated, created_at"

var validate = validator.New()

// EntryRepository handles database operations for learning entries
type EntryRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewEntryRepository creates a new repository instance
func NewEntryRepository(db *sqlx.DB, now func() time.Time) *EntryRepository {
	return &EntryRepository{db: db, now: now}
}

// AddEntry validates and appends a new entry. CreatedAt is assigned here.
func (r *EntryRepository) AddEntry(ctx context.Context, userID int64, content string, opts models.EntryOptions) (*models.Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid entry options: %w", err)
	}
	opts = opts.WithDefaults()

	entry := &models.Entry{
		UserID:        userID,
		Content:       content,
		Category:      opts.Category,
		Difficulty:    opts.Difficulty,
		Confidence:    opts.Confidence,
		Tags:          models.Tags(opts.Tags),
		Source:        opts.Source,
		IsAIGenerated: opts.IsAIGenerated,
		CreatedAt:     r.now().UTC(),
	}

	query := r.db.Rebind(`
		INSERT INTO entries (user_id, content, category, difficulty, confidence, tags, source, is_ai_generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowxContext(ctx, query,
		entry.UserID,
		entry.Content,
		entry.Category,
		entry.Difficulty,
		entry.Confidence,
		entry.Tags,
		entry.Source,
		entry.IsAIGenerated,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	return entry, nil
}

// GetEntriesInRange returns the user's entries with start <= created_at < end, oldest first
func (r *EntryRepository) GetEntriesInRange(ctx context.Context, userID int64, start, end time.Time) ([]models.Entry, error) {
	var entries []models.Entry
	query := r.db.Rebind(`
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`)
	err := r.db.SelectContext(ctx, &entries, query, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	return entries, nil
}

// GetTodayCount counts the user's entries within now's calendar day
func (r *EntryRepository) GetTodayCount(ctx context.Context, userID int64, now time.Time) (int, error) {
	start, end := analytics.DayBounds(now)
	var count int
	query := r.db.Rebind("SELECT COUNT(*) FROM entries WHERE user_id = ? AND created_at >= ? AND created_at < ?")
	if err := r.db.GetContext(ctx, &count, query, userID, start.UTC(), end.UTC()); err != nil {
		return 0, fmt.Errorf("failed to count today's entries: %w", err)
	}
	return count, nil
}

// SearchEntries returns the user's entries matching the query, best matches first.
// Matching is fuzzy and case-insensitive and tolerates a one-letter typo per word.
func (r *EntryRepository) SearchEntries(ctx context.Context, userID int64, query string) ([]models.Entry, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	var entries []models.Entry
	q := r.db.Rebind("SELECT " + entryColumns + " FROM entries WHERE user_id = ? ORDER BY created_at DESC, id DESC")
	if err := r.db.SelectContext(ctx, &entries, q, userID); err != nil {
		return nil, fmt.Errorf("failed to load entries for search: %w", err)
	}

	type ranked struct {
		entry models.Entry
		rank  int
	}
	var matches []ranked
	for _, e := range entries {
		if rank, ok := matchEntry(e, query); ok {
			matches = append(matches, ranked{entry: e, rank: rank})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].rank < matches[j].rank
	})

	if len(matches) > SearchLimit {
		matches = matches[:SearchLimit]
	}
	result := make([]models.Entry, len(matches))
	for i, m := range matches {
		result[i] = m.entry
	}
	return result, nil
}

// matchEntry returns a rank (lower is better) when the entry matches the query
func matchEntry(e models.Entry, query string) (int, bool) {
	for _, tag := range e.Tags {
		if tag == query {
			return 0, true
		}
	}

	content := strings.ToLower(e.Content)
	if strings.Contains(content, query) {
		return 1, true
	}

	words := strings.Fields(content)
	cleanWords := make([]string, 0, len(words))
	for _, word := range words {
		if w := strings.Trim(word, ".,!?;:()[]{}\"'"); w != "" {
			cleanWords = append(cleanWords, w)
		}
	}

	if ranks := fuzzy.RankFindFold(query, cleanWords); len(ranks) > 0 {
		sort.Sort(ranks)
		return 100 + ranks[0].Distance, true
	}

	if len(query) > 3 {
		for _, w := range cleanWords {
			if fuzzy.LevenshteinDistance(query, w) <= 1 {
				return 1000, true
			}
		}
	}
	return 0, false
}

// GetActiveUserIDsSince returns the distinct users with an entry created at or after since
func (r *EntryRepository) GetActiveUserIDsSince(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	query := r.db.Rebind("SELECT DISTINCT user_id FROM entries WHERE created_at >= ? ORDER BY user_id")
	if err := r.db.SelectContext(ctx, &ids, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get active users: %w", err)
	}
	return ids, nil
}

// DeleteEntriesBefore removes every entry created before cutoff (retention cleanup)
func (r *EntryRepository) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind("DELETE FROM entries WHERE created_at < ?")
	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CountEntries returns the number of stored entries across all users
func (r *EntryRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM entries"); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
