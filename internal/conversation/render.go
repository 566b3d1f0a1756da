package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/pkg/models"
)

// Button payload prefixes
const (
	payloadMenu     = "menu"
	payloadRetry    = "retry"
	payloadQuizDay  = "quizday"
	payloadCategory = "cat"
	payloadGoal     = "goal"
	payloadAnalysis = "analysis"
	payloadStop     = "stop"
)

const maxSearchResults = 10

var goalPresets = []int{1, 3, 5, 10}

func payload(kind, value string) string {
	return kind + ":" + value
}

func cancelButtons() [][]Button {
	return [][]Button{{{Text: "✖️ Cancel", Payload: payloadStop}}}
}

func stopButtons() [][]Button {
	return [][]Button{{{Text: "⏹ Stop", Payload: payloadStop}}}
}

// MainMenu returns the main menu keyboard
func MainMenu() [][]Button {
	return mainMenuButtons()
}

func mainMenuButtons() [][]Button {
	return [][]Button{
		{
			{Text: "📝 Daily log", Payload: payload(payloadMenu, "log")},
			{Text: "💡 I learned...", Payload: payload(payloadMenu, "learn")},
		},
		{
			{Text: "📊 Stats", Payload: payload(payloadMenu, "stats")},
			{Text: "🔍 Search", Payload: payload(payloadMenu, "search")},
		},
		{
			{Text: "🎯 Daily goal", Payload: payload(payloadMenu, "goal")},
			{Text: "⏰ Review time", Payload: payload(payloadMenu, "quiztime")},
		},
		{
			{Text: "🧠 Quiz me", Payload: payload(payloadMenu, "quiz")},
			{Text: "📅 Weekly review", Payload: payload(payloadMenu, "review")},
		},
	}
}

func quizDayButtons() [][]Button {
	var rows [][]Button
	var row []Button
	for day := time.Sunday; day <= time.Saturday; day++ {
		row = append(row, Button{Text: day.String()[:3], Payload: payload(payloadQuizDay, fmt.Sprint(int(day)))})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	return append(rows, row)
}

func categoryButtons() [][]Button {
	var rows [][]Button
	var row []Button
	for _, c := range models.Categories {
		row = append(row, Button{Text: c.Label(), Payload: payload(payloadCategory, string(c))})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	row = append(row, Button{Text: "No category", Payload: payload(payloadCategory, "none")})
	return append(rows, row)
}

func goalButtons() [][]Button {
	presets := make([]Button, 0, len(goalPresets))
	for _, n := range goalPresets {
		presets = append(presets, Button{Text: fmt.Sprint(n), Payload: payload(payloadGoal, fmt.Sprint(n))})
	}
	return [][]Button{
		presets,
		{
			{Text: "✏️ Custom", Payload: payload(payloadGoal, "custom")},
			{Text: "🚫 No goal", Payload: payload(payloadGoal, "off")},
		},
	}
}

func analysisButtons() [][]Button {
	return [][]Button{{
		{Text: "📋 Summary", Payload: payload(payloadAnalysis, "summary")},
		{Text: "❓ Quiz", Payload: payload(payloadAnalysis, "quiz")},
		{Text: "🔎 Insights", Payload: payload(payloadAnalysis, "insights")},
	}}
}

func retryButtons(command string) [][]Button {
	return [][]Button{{{Text: "🔁 Try again", Payload: payload(payloadRetry, command)}}}
}

const welcomeText = "👋 Welcome to your learning diary!\n\n" +
	"I help you keep track of what you learn every day.\n\n" +
	"🔹 How it works:\n" +
	"1. Tell me what you learned with /learn or /quick\n" +
	"2. Log your work day with /log\n" +
	"3. Watch your streak grow in /stats\n" +
	"4. Get a weekly review and quizzes from your own notes"

const helpText = "📖 Commands\n\n" +
	"📝 Logging:\n" +
	"/learn - Add a learning entry with a category\n" +
	"/quick - Add an entry in one message\n" +
	"/log - Daily work log (work, learned, blockers)\n\n" +
	"📊 Progress:\n" +
	"/stats - Streak, totals and goal progress\n" +
	"/search <text> - Find past entries\n" +
	"/review - AI summary of the last week\n" +
	"/insights - AI insights about the last week\n" +
	"/quiz - Short quiz on this week's entries\n" +
	"/chat - Reflect with the AI coach\n\n" +
	"⚙️ Settings:\n" +
	"/goal - Set a daily goal\n" +
	"/quiztime - Choose when the weekly review arrives\n" +
	"/notify on|off - Turn reminders on or off\n" +
	"/timezone <Area/City> - Set your timezone\n\n" +
	"/cancel - Cancel the current dialog"

func formatStats(snap analytics.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("📊 Your stats\n\n")
	fmt.Fprintf(&sb, "🔥 Streak: %d %s\n", snap.Streak, plural(snap.Streak, "day", "days"))
	fmt.Fprintf(&sb, "📅 Today: %d\n", snap.Today)
	fmt.Fprintf(&sb, "🗓 Last 7 days: %d (%.1f per day)\n", snap.Week, snap.WeekAverage)
	fmt.Fprintf(&sb, "📆 Last 30 days: %d (%.1f per day)\n", snap.Month, snap.MonthAverage)

	if snap.HasGoal {
		fmt.Fprintf(&sb, "\n🎯 Daily goal: %d/%d (%d%%)\n", snap.Today, *snap.Goal, snap.GoalProgress)
	}

	if len(snap.TopCategories) > 0 {
		sb.WriteString("\n🏷 Top categories:\n")
		for i, c := range snap.TopCategories {
			fmt.Fprintf(&sb, "%d. %s - %d\n", i+1, c.Name.Label(), c.Count)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatProgress(today int, goal *int) string {
	progress, ok := analytics.GoalProgress(today, goal)
	if !ok {
		return fmt.Sprintf("📅 Entries today: %d", today)
	}
	line := fmt.Sprintf("🎯 Today: %d/%d (%d%%)", today, *goal, progress)
	if progress >= 100 {
		line += " Goal reached! 🎉"
	}
	return line
}

func formatSearchResults(query string, entries []models.Entry, loc *time.Location) string {
	if len(entries) == 0 {
		return fmt.Sprintf("🔍 Nothing found for \"%s\".", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Found %d %s for \"%s\":\n", len(entries), plural(len(entries), "entry", "entries"), query)
	for i, e := range entries {
		if i == maxSearchResults {
			fmt.Fprintf(&sb, "\n...and %d more", len(entries)-maxSearchResults)
			break
		}
		fmt.Fprintf(&sb, "\n• %s", e.CreatedAt.In(loc).Format("Jan 2"))
		if e.Category != nil {
			fmt.Fprintf(&sb, " [%s]", e.Category.Label())
		}
		fmt.Fprintf(&sb, " %s", e.Content)
	}
	return sb.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
