package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/internal/logger"
	"github.com/example/diarybot/pkg/models"
)

// Defaults for scheduler options
const (
	DefaultNudgeHour   = 20
	DefaultConcurrency = 8
	DefaultUserTimeout = time.Minute
	retentionHour      = 3 // UTC
	reviewDays         = 7
)

// NudgeMessages are sent to users without an entry today
var NudgeMessages = []string{
	"👋 No entries today yet. What's one thing you learned?",
	"🌱 Small steps count. Send /quick and jot down today's learning.",
	"🔥 Keep your streak alive! Use /learn to log something.",
	"📚 Even five minutes of reflection helps. What did you discover today?",
}

// Notifier delivers a message to a user
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Store is the part of the entry store used by scheduled jobs
type Store interface {
	GetAllUsers(ctx context.Context) ([]models.User, error)
	GetEntriesInRange(ctx context.Context, userID int64, start, end time.Time) ([]models.Entry, error)
	GetActiveUserIDsSince(ctx context.Context, since time.Time) ([]int64, error)
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Summarizer writes the weekly review
type Summarizer interface {
	GenerateAnalysis(ctx context.Context, entries []models.Entry, mode ai.Mode) string
}

// Sweeper drops idle conversation states
type Sweeper interface {
	Sweep(now time.Time) int
}

// Options configures a Scheduler. Summarizer and Sweeper are optional.
type Options struct {
	Store         Store
	Notifier      Notifier
	Summarizer    Summarizer
	Sweeper       Sweeper
	Logger        *logger.Logger
	Rand          *rand.Rand
	NudgeHour     int
	RetentionDays int
	Concurrency   int
	UserTimeout   time.Duration
}

// Report summarizes one tick
type Report struct {
	Reviews int
	Nudges  int
	Failed  int
	Deleted int64
	Swept   int
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	cron          *gocron.Scheduler
	store         Store
	notifier      Notifier
	ai            Summarizer
	sweeper       Sweeper
	log           *logger.Logger
	nudgeHour     int
	retentionDays int
	concurrency   int
	userTimeout   time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New creates a new scheduler instance
func New(opts Options) *Scheduler {
	s := &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		store:         opts.Store,
		notifier:      opts.Notifier,
		ai:            opts.Summarizer,
		sweeper:       opts.Sweeper,
		log:           opts.Logger,
		nudgeHour:     opts.NudgeHour,
		retentionDays: opts.RetentionDays,
		concurrency:   opts.Concurrency,
		userTimeout:   opts.UserTimeout,
		rnd:           opts.Rand,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.nudgeHour < 0 || s.nudgeHour > 23 {
		s.nudgeHour = DefaultNudgeHour
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.userTimeout <= 0 {
		s.userTimeout = DefaultUserTimeout
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

// Start runs the hourly tick at the top of every hour
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Cron("0 * * * *").Do(func() {
		report := s.OnTick(ctx, time.Now())
		s.log.Info("scheduler tick finished",
			"reviews", report.Reviews, "nudges", report.Nudges, "failed", report.Failed,
			"deleted", report.Deleted, "swept", report.Swept)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule hourly tick: %w", err)
	}
	s.cron.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// OnTick runs every job due at now. A failing user never affects other users.
func (s *Scheduler) OnTick(ctx context.Context, now time.Time) Report {
	var report Report

	if s.sweeper != nil {
		report.Swept = s.sweeper.Sweep(now)
	}
	if s.retentionDays > 0 && now.UTC().Hour() == retentionHour {
		report.Deleted = s.cleanup(ctx, now)
	}

	users, err := s.store.GetAllUsers(ctx)
	if err != nil {
		s.log.Error("failed to load users", "error", err)
		return report
	}

	reviews := lo.Filter(users, func(u models.User, _ int) bool {
		return u.Settings.NotificationsEnabled() && reviewDue(u, now)
	})
	nudges, err := s.inactiveAtNudgeHour(ctx, users, now)
	if err != nil {
		s.log.Error("failed to find inactive users", "error", err)
	}

	var sent, nudged, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, u := range reviews {
		u := u
		g.Go(func() error {
			ok, err := s.runForUser(ctx, u.ID, "weekly_review", func(ctx context.Context) (bool, error) {
				return s.sendReview(ctx, u, now)
			})
			count(ok, err, &sent, &failed)
			return nil
		})
	}
	for _, u := range nudges {
		u := u
		g.Go(func() error {
			ok, err := s.runForUser(ctx, u.ID, "nudge", func(ctx context.Context) (bool, error) {
				return true, s.notifier.Notify(ctx, u.ID, s.pick(NudgeMessages))
			})
			count(ok, err, &nudged, &failed)
			return nil
		})
	}
	_ = g.Wait()

	report.Reviews = int(sent.Load())
	report.Nudges = int(nudged.Load())
	report.Failed = int(failed.Load())
	return report
}

func count(ok bool, err error, done, failed *atomic.Int64) {
	switch {
	case err != nil:
		failed.Add(1)
	case ok:
		done.Add(1)
	}
}

// reviewDue reports whether the user's weekly review slot is the current local hour
func reviewDue(u models.User, now time.Time) bool {
	local := analytics.LocalNow(&u, now)
	return int(local.Weekday()) == u.QuizDay && local.Hour() == u.QuizTime
}

// inactiveAtNudgeHour returns the users for whom it is the nudge hour and who
// have no entry since their local midnight
func (s *Scheduler) inactiveAtNudgeHour(ctx context.Context, users []models.User, now time.Time) ([]models.User, error) {
	candidates := lo.Filter(users, func(u models.User, _ int) bool {
		return analytics.LocalNow(&u, now).Hour() == s.nudgeHour
	})
	if len(candidates) == 0 {
		return nil, nil
	}

	// every candidate is at the same local hour, so their midnights are less than an hour apart
	since := lo.MinBy(candidates, func(a, b models.User) bool {
		return analytics.StartOfDay(analytics.LocalNow(&a, now)).Before(analytics.StartOfDay(analytics.LocalNow(&b, now)))
	})
	active, err := s.store.GetActiveUserIDsSince(ctx, analytics.StartOfDay(analytics.LocalNow(&since, now)))
	if err != nil {
		return nil, err
	}
	return analytics.InactiveUsers(candidates, active), nil
}

func (s *Scheduler) sendReview(ctx context.Context, u models.User, now time.Time) (bool, error) {
	entries, err := s.store.GetEntriesInRange(ctx, u.ID, now.AddDate(0, 0, -reviewDays), now.Add(time.Second))
	if err != nil {
		return false, fmt.Errorf("failed to load entries: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	var text string
	if s.ai != nil {
		text = "📅 Your weekly review\n\n" + s.ai.GenerateAnalysis(ctx, entries, ai.ModeSummary)
	} else {
		snap := analytics.Summarize(entries, &u, analytics.LocalNow(&u, now))
		text = fmt.Sprintf("📅 Your weekly review\n\nYou logged %d %s this week. Streak: %d.",
			snap.Week, plural(snap.Week, "entry", "entries"), snap.Streak)
	}
	if err := s.notifier.Notify(ctx, u.ID, text); err != nil {
		return false, fmt.Errorf("failed to send weekly review: %w", err)
	}
	return true, nil
}

func (s *Scheduler) cleanup(ctx context.Context, now time.Time) int64 {
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	deleted, err := s.store.DeleteEntriesBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "cutoff", cutoff, "error", err)
		return 0
	}
	if deleted > 0 {
		s.log.Info("retention cleanup removed entries", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}

// runForUser runs one user's job with its own timeout and recovers panics
func (s *Scheduler) runForUser(ctx context.Context, userID int64, job string, fn func(ctx context.Context) (bool, error)) (ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.userTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
			s.log.Error("scheduled job panicked", "job", job, "user_id", userID, "panic", r)
		}
	}()

	ok, err = fn(ctx)
	if err != nil {
		s.log.Error("scheduled job failed", "job", job, "user_id", userID, "error", err)
	}
	return ok, err
}

func (s *Scheduler) pick(options []string) string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return options[s.rnd.Intn(len(options))]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
