package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/pkg/models"
)

const (
	// MinQuizEntries is the number of recent entries needed for /quiz
	MinQuizEntries = 3
	reviewDays     = 7
)

const aiDisabledText = "🤖 AI features are turned off for this bot."

// command executes a slash command. prev is the dialog that was just abandoned.
func (m *Machine) command(ctx context.Context, userID int64, name, args string, prev *State) ([]Reply, error) {
	switch name {
	case "start":
		if _, err := m.user(ctx, userID); err != nil {
			return nil, err
		}
		return []Reply{{Text: welcomeText, Buttons: mainMenuButtons()}}, nil
	case "help":
		return []Reply{text(helpText)}, nil
	case "menu":
		return []Reply{{Text: "🏠 Main menu", Buttons: mainMenuButtons()}}, nil
	case "log":
		return m.save(ctx, newState(userID, CommandLog), Reply{Text: m.pick(logWorkPrompts), Buttons: cancelButtons()})
	case "learn":
		return m.save(ctx, newState(userID, CommandWaitingForLearning), Reply{
			Text:    "💡 What did you learn? Send it as one message. #hashtags become tags.",
			Buttons: cancelButtons(),
		})
	case "quick":
		if args != "" {
			return m.commitEntry(ctx, userID, args, models.DetectCategory(args))
		}
		return m.save(ctx, newState(userID, CommandQuickLearn), Reply{
			Text:    "⚡ Send what you learned in one message.",
			Buttons: cancelButtons(),
		})
	case "search":
		if args != "" {
			return m.search(ctx, userID, args)
		}
		return m.save(ctx, newState(userID, CommandSearch), Reply{
			Text:    "🔍 What should I look for?",
			Buttons: cancelButtons(),
		})
	case "goal":
		return m.showGoal(ctx, userID)
	case "quiztime":
		return m.showQuizTime(ctx, userID)
	case "stats":
		return m.stats(ctx, userID)
	case "review":
		return m.analysis(ctx, userID, ai.ModeSummary)
	case "insights":
		return m.analysis(ctx, userID, ai.ModeInsights)
	case "quiz":
		return m.startQuiz(ctx, userID)
	case "chat":
		return m.startChat(ctx, userID)
	case "notify":
		return m.notify(ctx, userID, args)
	case "timezone":
		return m.timezone(ctx, userID, args)
	case "cancel", "stop":
		return []Reply{text(cancelText(prev))}, nil
	}
	return []Reply{{Text: "🤷 Unknown command. Use /help to see what I can do.", Buttons: mainMenuButtons()}}, nil
}

func cancelText(prev *State) string {
	if prev == nil {
		return "🤷 Nothing to cancel."
	}
	switch prev.Command {
	case CommandAIConvo, CommandInlineQuiz:
		return "👋 Conversation ended."
	}
	return "❌ Cancelled."
}

func (m *Machine) user(ctx context.Context, userID int64) (*models.User, error) {
	user, err := m.store.FindOrCreateUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (m *Machine) showGoal(ctx context.Context, userID int64) ([]Reply, error) {
	if _, err := m.user(ctx, userID); err != nil {
		return nil, err
	}
	goal, err := m.store.GetUserGoal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily goal: %w", err)
	}

	msg := "🎯 You don't have a daily goal yet."
	if goal != nil {
		msg = fmt.Sprintf("🎯 Your daily goal: %d %s.", *goal, plural(*goal, "entry", "entries"))
	}
	return []Reply{{Text: msg + "\nHow many entries per day do you want to aim for?", Buttons: goalButtons()}}, nil
}

func (m *Machine) showQuizTime(ctx context.Context, userID int64) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("⏰ Your weekly review arrives on %s at %02d:00 (%s).\nChoose a new day:",
		time.Weekday(user.QuizDay), user.QuizTime, user.Settings.Timezone)
	return []Reply{{Text: msg, Buttons: quizDayButtons()}}, nil
}

func (m *Machine) stats(ctx context.Context, userID int64) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := analytics.LocalNow(user, m.now())
	_, endOfToday := analytics.DayBounds(now)
	entries, err := m.store.GetEntriesInRange(ctx, userID, time.Time{}, endOfToday)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	return []Reply{text(formatStats(analytics.Summarize(entries, user, now)))}, nil
}

// recentEntries returns the user's entries of the last seven days
func (m *Machine) recentEntries(ctx context.Context, userID int64) ([]models.Entry, time.Time, error) {
	now := m.now()
	since := now.AddDate(0, 0, -reviewDays)
	entries, err := m.store.GetEntriesInRange(ctx, userID, since, now.Add(time.Second))
	if err != nil {
		return nil, since, fmt.Errorf("failed to load recent entries: %w", err)
	}
	return entries, since, nil
}

func (m *Machine) analysis(ctx context.Context, userID int64, mode ai.Mode) ([]Reply, error) {
	if m.ai == nil {
		return []Reply{text(aiDisabledText)}, nil
	}
	if _, err := m.user(ctx, userID); err != nil {
		return nil, err
	}
	entries, _, err := m.recentEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Reply{text("📭 No entries in the past week yet. Add one with /learn.")}, nil
	}
	return []Reply{{Text: m.ai.GenerateAnalysis(ctx, entries, mode), Buttons: analysisButtons()}}, nil
}

func (m *Machine) notify(ctx context.Context, userID int64, args string) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		state := "off"
		if user.Settings.NotificationsEnabled() {
			state = "on"
		}
		return []Reply{text(fmt.Sprintf("🔔 Reminders are %s. Use /notify on or /notify off.", state))}, nil
	}

	settings := user.Settings
	settings.Notifications = &enabled
	if err := m.store.UpdateSettings(ctx, userID, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	if enabled {
		return []Reply{text("🔔 Reminders turned on.")}, nil
	}
	return []Reply{text("🔕 Reminders turned off.")}, nil
}

func (m *Machine) timezone(ctx context.Context, userID int64, args string) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if args == "" {
		return []Reply{text(fmt.Sprintf("🌍 Your timezone is %s. Change it with /timezone Europe/Berlin", user.Settings.Timezone))}, nil
	}

	loc, err := time.LoadLocation(args)
	if err != nil || strings.EqualFold(args, "local") {
		return []Reply{text(fmt.Sprintf("🤷 I don't know the timezone %q. Use a name like Europe/Berlin or America/New_York.", args))}, nil
	}

	settings := user.Settings
	settings.Timezone = loc.String()
	if err := m.store.UpdateSettings(ctx, userID, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return []Reply{text(fmt.Sprintf("🌍 Timezone set to %s. Local time: %s", loc, m.now().In(loc).Format("15:04")))}, nil
}
