package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/diarybot/pkg/models"
)

var (
	// ErrUserNotFound is returned when no user exists for the given ID
	ErrUserNotFound = errors.New("user not found")
	// ErrOutOfRange is returned for quiz day/hour or goal values outside their bounds
	ErrOutOfRange = errors.New("value out of range")
)

const userColumns = "id, quiz_day, quiz_time, daily_goal, settings, joined_at, last_active_at"

// UserRepository handles database operations for users
type UserRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB, now func() time.Time) *UserRepository {
	return &UserRepository{db: db, now: now}
}

// FindOrCreateUser creates the user on first contact. Repeat calls only
// refresh last_active_at; every other field is left as it was.
func (r *UserRepository) FindOrCreateUser(ctx context.Context, id int64) (*models.User, error) {
	now := r.now().UTC()
	query := r.db.Rebind(`
		INSERT INTO users (id, quiz_day, quiz_time, settings, joined_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last_active_at = excluded.last_active_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		id,
		models.DefaultQuizDay,
		models.DefaultQuizTime,
		models.DefaultSettings(),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetUser(ctx, id)
}

// GetUser returns a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// GetAllUsers returns every user ordered by join date
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY joined_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

// SetQuizTime stores the weekly review slot
func (r *UserRepository) SetQuizTime(ctx context.Context, id int64, day, hour int) error {
	if day < 0 || day > 6 || hour < 0 || hour > 23 {
		return fmt.Errorf("quiz time %d/%d: %w", day, hour, ErrOutOfRange)
	}
	query := r.db.Rebind("UPDATE users SET quiz_day = ?, quiz_time = ? WHERE id = ?")
	return r.updateOne(ctx, "quiz time", query, day, hour, id)
}

// SetUserGoal stores the daily goal; nil removes it
func (r *UserRepository) SetUserGoal(ctx context.Context, id int64, goal *int) error {
	if goal != nil && (*goal < models.MinDailyGoal || *goal > models.MaxDailyGoal) {
		return fmt.Errorf("daily goal %d: %w", *goal, ErrOutOfRange)
	}
	query := r.db.Rebind("UPDATE users SET daily_goal = ? WHERE id = ?")
	return r.updateOne(ctx, "daily goal", query, goal, id)
}

// GetUserGoal returns the daily goal, or nil when none is set
func (r *UserRepository) GetUserGoal(ctx context.Context, id int64) (*int, error) {
	var goal sql.NullInt64
	query := r.db.Rebind("SELECT daily_goal FROM users WHERE id = ?")
	err := r.db.QueryRowContext(ctx, query, id).Scan(&goal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily goal: %w", err)
	}
	if !goal.Valid {
		return nil, nil
	}
	v := int(goal.Int64)
	return &v, nil
}

// UpdateSettings replaces the user's preferences
func (r *UserRepository) UpdateSettings(ctx context.Context, id int64, settings models.Settings) error {
	query := r.db.Rebind("UPDATE users SET settings = ? WHERE id = ?")
	return r.updateOne(ctx, "settings", query, settings.WithDefaults(), id)
}

// CountUsers returns the number of registered users
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) updateOne(ctx context.Context, what, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
