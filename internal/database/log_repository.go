package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/diarybot/pkg/models"
)

// LogRepository handles database operations for work logs
type LogRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewLogRepository creates a new repository instance
func NewLogRepository(db *sqlx.DB, now func() time.Time) *LogRepository {
	return &LogRepository{db: db, now: now}
}

// AddLog stores a completed work log
func (r *LogRepository) AddLog(ctx context.Context, userID int64, work, learned, blockers string) (*models.WorkLog, error) {
	log := &models.WorkLog{
		UserID:    userID,
		Work:      strings.TrimSpace(work),
		Learned:   strings.TrimSpace(learned),
		Blockers:  strings.TrimSpace(blockers),
		CreatedAt: r.now().UTC(),
	}
	if log.Work == "" && log.Learned == "" {
		return nil, ErrEmptyContent
	}

	query := r.db.Rebind(`
		INSERT INTO work_logs (user_id, work, learned, blockers, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowxContext(ctx, query, log.UserID, log.Work, log.Learned, log.Blockers, log.CreatedAt).Scan(&log.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create work log: %w", err)
	}
	return log, nil
}

// GetLogsInRange returns the user's work logs with start <= created_at < end, oldest first
func (r *LogRepository) GetLogsInRange(ctx context.Context, userID int64, start, end time.Time) ([]models.WorkLog, error) {
	var logs []models.WorkLog
	query := r.db.Rebind(`
		SELECT id, user_id, work, learned, blockers, created_at
		FROM work_logs
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`)
	if err := r.db.SelectContext(ctx, &logs, query, userID, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get work logs: %w", err)
	}
	return logs, nil
}
