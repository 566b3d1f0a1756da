// Package analytics answers "how is this user doing" questions. Every function
// is a pure function of the entries, the user's settings and a caller supplied
// "now"; nothing here reads the store or mutates an entry.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/example/diarybot/pkg/models"
)

const (
	// DefaultTopCategories is the number of categories returned by Summarize
	DefaultTopCategories = 5
	weekDays             = 7
	monthDays            = 30
)

// CategoryCount is one row of the top categories table
type CategoryCount struct {
	Name  models.Category
	Count int
}

// Snapshot is everything the stats screen shows
type Snapshot struct {
	Today         int
	Week          int
	Month         int
	WeekAverage   float64
	MonthAverage  float64
	Streak        int
	Goal          *int
	GoalProgress  int
	HasGoal       bool
	TopCategories []CategoryCount
}

// StartOfDay truncates t to midnight in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// LocalNow converts now into the user's configured timezone
func LocalNow(user *models.User, now time.Time) time.Time {
	if user == nil {
		return now
	}
	return now.In(user.Settings.Location())
}

// DayBounds returns [start, end) of the calendar day containing now
func DayBounds(now time.Time) (time.Time, time.Time) {
	start := StartOfDay(now)
	return start, start.AddDate(0, 0, 1)
}

// TodayCount counts entries created within now's calendar day
func TodayCount(entries []models.Entry, now time.Time) int {
	start, end := DayBounds(now)
	return lo.CountBy(entries, func(e models.Entry) bool {
		return !e.CreatedAt.Before(start) && e.CreatedAt.Before(end)
	})
}

// GoalProgress returns min(100, round(today/goal*100)).
// The second result is false when no goal is set.
func GoalProgress(today int, goal *int) (int, bool) {
	if goal == nil || *goal <= 0 {
		return 0, false
	}
	pct := int(math.Round(float64(today) / float64(*goal) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Streak counts consecutive calendar days with at least one entry, walking
// backward from now. An empty today does not break the streak; the walk then
// starts from yesterday.
func Streak(entries []models.Entry, now time.Time) int {
	if len(entries) == 0 {
		return 0
	}
	loc := now.Location()
	days := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		days[dayKey(e.CreatedAt.In(loc))] = struct{}{}
	}

	day := StartOfDay(now)
	if _, ok := days[dayKey(day)]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := days[dayKey(day)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// CountSince counts entries with CreatedAt >= since
func CountSince(entries []models.Entry, since time.Time) int {
	return lo.CountBy(entries, func(e models.Entry) bool {
		return !e.CreatedAt.Before(since)
	})
}

// WeeklyTotal counts entries from the last seven days
func WeeklyTotal(entries []models.Entry, now time.Time) int {
	return CountSince(entries, now.AddDate(0, 0, -weekDays))
}

// MonthlyTotal counts entries from the last thirty days
func MonthlyTotal(entries []models.Entry, now time.Time) int {
	return CountSince(entries, now.AddDate(0, 0, -monthDays))
}

// Average is a simple per-day mean; zero days yields zero
func Average(count, days int) float64 {
	if days <= 0 {
		return 0
	}
	return float64(count) / float64(days)
}

// AveragePerUser divides total by users, returning zero when there are no users
func AveragePerUser(total, users int) float64 {
	if users <= 0 {
		return 0
	}
	return float64(total) / float64(users)
}

// TopCategories groups categorized entries and returns the n most frequent.
// Ties are ordered by category value.
func TopCategories(entries []models.Entry, n int) []CategoryCount {
	if n <= 0 {
		n = DefaultTopCategories
	}
	categorized := lo.Filter(entries, func(e models.Entry, _ int) bool {
		return e.Category != nil
	})
	counts := lo.CountValuesBy(categorized, func(e models.Entry) models.Category {
		return *e.Category
	})

	result := make([]CategoryCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// InactiveUsers returns users with notifications enabled whose id is not in activeIDs
func InactiveUsers(users []models.User, activeIDs []int64) []models.User {
	active := lo.SliceToMap(activeIDs, func(id int64) (int64, struct{}) {
		return id, struct{}{}
	})
	return lo.Filter(users, func(u models.User, _ int) bool {
		if !u.Settings.NotificationsEnabled() {
			return false
		}
		_, ok := active[u.ID]
		return !ok
	})
}

// Summarize computes a full snapshot for the user as of now.
// now should already be in the user's location (see LocalNow).
func Summarize(entries []models.Entry, user *models.User, now time.Time) Snapshot {
	snap := Snapshot{
		Today:         TodayCount(entries, now),
		Week:          WeeklyTotal(entries, now),
		Month:         MonthlyTotal(entries, now),
		Streak:        Streak(entries, now),
		TopCategories: TopCategories(entries, DefaultTopCategories),
	}
	snap.WeekAverage = Average(snap.Week, weekDays)
	snap.MonthAverage = Average(snap.Month, monthDays)
	if user != nil {
		snap.Goal = user.DailyGoal
		snap.GoalProgress, snap.HasGoal = GoalProgress(snap.Today, user.DailyGoal)
	}
	return snap
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
