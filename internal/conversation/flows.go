package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/pkg/models"
)

const (
	maxTagLength  = 64
	maxChatTurns  = 20
	emptyInputMsg = "✍️ Please send your answer as a text message."
)

// advance feeds one text message into the user's dialog
func (m *Machine) advance(ctx context.Context, state *State, input string) ([]Reply, error) {
	if input == "" {
		return []Reply{text(emptyInputMsg)}, nil
	}

	switch state.Command {
	case CommandLog:
		return m.advanceLog(ctx, state, input)
	case CommandQuizTime:
		return m.advanceQuizTime(ctx, state, input)
	case CommandQuickLearn:
		replies, err := m.commitEntry(ctx, state.UserID, input, models.DetectCategory(input))
		if err != nil {
			return nil, err
		}
		m.finish(ctx, state.UserID)
		return replies, nil
	case CommandWaitingForLearning:
		return m.advanceLearn(ctx, state, input)
	case CommandSearch:
		replies, err := m.search(ctx, state.UserID, input)
		m.finish(ctx, state.UserID)
		return replies, err
	case CommandCustomGoal:
		return m.advanceCustomGoal(ctx, state, input)
	case CommandAIConvo:
		return m.advanceChat(ctx, state, input)
	case CommandInlineQuiz:
		return m.advanceQuiz(ctx, state, input)
	}

	m.log.Warn("dropping dialog with unknown command", "user_id", state.UserID, "command", state.Command)
	m.finish(ctx, state.UserID)
	return nil, nil
}

func (m *Machine) advanceLog(ctx context.Context, state *State, input string) ([]Reply, error) {
	switch state.Step {
	case 1:
		state.Data[dataWork] = input
		state.Step = 2
		return m.save(ctx, state, Reply{Text: m.pick(logLearnPrompts), Buttons: cancelButtons()})
	case 2:
		state.Data[dataLearn] = input
		state.Step = 3
		return m.save(ctx, state, Reply{Text: m.pick(logBlockerPrompts), Buttons: cancelButtons()})
	}

	if _, err := m.user(ctx, state.UserID); err != nil {
		return nil, err
	}
	learned := state.Data[dataLearn]
	if _, err := m.store.AddLog(ctx, state.UserID, state.Data[dataWork], learned, input); err != nil {
		return nil, fmt.Errorf("failed to save log: %w", err)
	}
	m.finish(ctx, state.UserID)

	replies := []Reply{text("✅ Log saved. Great work today!")}
	if m.ai == nil {
		return replies, nil
	}

	// the follow-up is a new dialog; a failure here must not undo the saved log
	question := m.ai.GenerateFollowUp(ctx, learned)
	followUp := newState(state.UserID, CommandAIConvo)
	followUp.History = []models.Turn{{Question: question}}
	if err := m.states.Put(ctx, followUp); err != nil {
		m.log.Warn("failed to start follow-up dialog", "user_id", state.UserID, "error", err)
		return replies, nil
	}
	return append(replies, Reply{Text: question, Buttons: stopButtons()}), nil
}

func (m *Machine) selectQuizDay(ctx context.Context, userID int64, value string) ([]Reply, error) {
	day, err := strconv.Atoi(value)
	if err != nil || day < 0 || day > 6 {
		return []Reply{text("🤷 Unknown day.")}, nil
	}

	state := newState(userID, CommandQuizTime)
	state.Data[dataDay] = strconv.Itoa(day)
	return m.save(ctx, state, Reply{
		Text:    fmt.Sprintf("⏰ %s it is. At what hour? Send a number from 0 to 23.", time.Weekday(day)),
		Buttons: cancelButtons(),
	})
}

func (m *Machine) advanceQuizTime(ctx context.Context, state *State, input string) ([]Reply, error) {
	hour, err := strconv.Atoi(input)
	if err != nil || hour < 0 || hour > 23 {
		return []Reply{text("⚠️ Please send a whole number from 0 to 23.")}, nil
	}
	day, err := strconv.Atoi(state.Data[dataDay])
	if err != nil {
		return nil, fmt.Errorf("corrupt quiz day %q: %w", state.Data[dataDay], err)
	}

	user, err := m.user(ctx, state.UserID)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetQuizTime(ctx, state.UserID, day, hour); err != nil {
		return nil, fmt.Errorf("failed to set quiz time: %w", err)
	}
	m.finish(ctx, state.UserID)
	return []Reply{text(fmt.Sprintf("✅ Weekly review set for %s at %02d:00 (%s).",
		time.Weekday(day), hour, user.Settings.Timezone))}, nil
}

func (m *Machine) advanceLearn(ctx context.Context, state *State, input string) ([]Reply, error) {
	if state.Step == 1 {
		state.Data[dataContent] = input
		state.Step = 2
		return m.save(ctx, state, Reply{Text: "🏷 Pick a category:", Buttons: categoryButtons()})
	}
	return []Reply{{Text: "👆 Please choose a category with the buttons.", Buttons: categoryButtons()}}, nil
}

func (m *Machine) selectCategory(ctx context.Context, userID int64, value string) ([]Reply, error) {
	state, ok, err := m.states.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok || state.Command != CommandWaitingForLearning || state.Step != 2 {
		return []Reply{text("⌛ This button has expired. Use /learn to add an entry.")}, nil
	}

	var category *models.Category
	if value != "none" {
		c, ok := models.ParseCategory(value)
		if !ok {
			return []Reply{{Text: "🤷 Unknown category.", Buttons: categoryButtons()}}, nil
		}
		category = &c
	}

	replies, err := m.commitEntry(ctx, userID, state.Data[dataContent], category)
	if err != nil {
		return nil, err
	}
	m.finish(ctx, userID)
	return replies, nil
}

// commitEntry stores a learning entry and reports today's progress
func (m *Machine) commitEntry(ctx context.Context, userID int64, content string, category *models.Category) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := m.store.AddEntry(ctx, userID, content, models.EntryOptions{
		Category: category,
		Tags:     extractTags(content),
		Source:   models.SourceChat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	today, err := m.store.GetTodayCount(ctx, userID, analytics.LocalNow(user, m.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to count today's entries: %w", err)
	}

	msg := "✅ Saved!"
	if entry.Category != nil {
		msg = fmt.Sprintf("✅ Saved to %s!", entry.Category.Label())
	}
	return []Reply{text(msg + "\n" + formatProgress(today, user.DailyGoal))}, nil
}

func (m *Machine) search(ctx context.Context, userID int64, query string) ([]Reply, error) {
	user, err := m.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := m.store.SearchEntries(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	return []Reply{text(formatSearchResults(query, entries, user.Settings.Location()))}, nil
}

func (m *Machine) selectGoal(ctx context.Context, userID int64, value string) ([]Reply, error) {
	switch value {
	case "custom":
		return m.save(ctx, newState(userID, CommandCustomGoal), Reply{
			Text:    fmt.Sprintf("✏️ Send your daily goal as a number from %d to %d.", models.MinDailyGoal, models.MaxDailyGoal),
			Buttons: cancelButtons(),
		})
	case "off":
		if _, err := m.user(ctx, userID); err != nil {
			return nil, err
		}
		if err := m.store.SetUserGoal(ctx, userID, nil); err != nil {
			return nil, fmt.Errorf("failed to clear daily goal: %w", err)
		}
		return []Reply{text("🚫 Daily goal removed.")}, nil
	}

	goal, ok := parseGoal(value)
	if !ok {
		return []Reply{text("🤷 Unknown goal.")}, nil
	}
	return m.setGoal(ctx, userID, goal)
}

func (m *Machine) advanceCustomGoal(ctx context.Context, state *State, input string) ([]Reply, error) {
	goal, ok := parseGoal(input)
	if !ok {
		return []Reply{text(fmt.Sprintf("⚠️ Please send a whole number from %d to %d.", models.MinDailyGoal, models.MaxDailyGoal))}, nil
	}
	replies, err := m.setGoal(ctx, state.UserID, goal)
	if err != nil {
		return nil, err
	}
	m.finish(ctx, state.UserID)
	return replies, nil
}

func (m *Machine) setGoal(ctx context.Context, userID int64, goal int) ([]Reply, error) {
	if _, err := m.user(ctx, userID); err != nil {
		return nil, err
	}
	if err := m.store.SetUserGoal(ctx, userID, &goal); err != nil {
		return nil, fmt.Errorf("failed to set daily goal: %w", err)
	}
	return []Reply{text(fmt.Sprintf("🎯 Daily goal set to %d %s.", goal, plural(goal, "entry", "entries")))}, nil
}

func parseGoal(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < models.MinDailyGoal || n > models.MaxDailyGoal {
		return 0, false
	}
	return n, true
}

func (m *Machine) selectAnalysis(ctx context.Context, userID int64, value string) ([]Reply, error) {
	mode, ok := ai.ParseMode(value)
	if !ok {
		return []Reply{text("🤷 Unknown analysis.")}, nil
	}
	return m.analysis(ctx, userID, mode)
}

func (m *Machine) startChat(ctx context.Context, userID int64) ([]Reply, error) {
	if m.ai == nil {
		return []Reply{text(aiDisabledText)}, nil
	}
	opener := m.pick(chatOpeners)
	state := newState(userID, CommandAIConvo)
	state.History = []models.Turn{{Question: opener}}
	return m.save(ctx, state, Reply{Text: opener, Buttons: stopButtons()})
}

func (m *Machine) advanceChat(ctx context.Context, state *State, input string) ([]Reply, error) {
	if m.ai == nil {
		m.finish(ctx, state.UserID)
		return []Reply{text(aiDisabledText)}, nil
	}
	answerLastTurn(state, input)

	question := m.ai.GenerateFollowUp(ctx, input)
	state.History = append(state.History, models.Turn{Question: question})
	if len(state.History) > maxChatTurns {
		state.History = state.History[len(state.History)-maxChatTurns:]
	}
	state.Step++
	return m.save(ctx, state, Reply{Text: question, Buttons: stopButtons()})
}

func (m *Machine) startQuiz(ctx context.Context, userID int64) ([]Reply, error) {
	if m.ai == nil {
		return []Reply{text(aiDisabledText)}, nil
	}
	if _, err := m.user(ctx, userID); err != nil {
		return nil, err
	}
	entries, since, err := m.recentEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) < MinQuizEntries {
		return []Reply{text(fmt.Sprintf("📭 A quiz needs at least %d entries from the past week. You have %d so far.",
			MinQuizEntries, len(entries)))}, nil
	}

	question, ok := m.ai.GetNextQuestion(ctx, entries, nil)
	if !ok {
		return []Reply{text("🤷 I couldn't come up with a question this time. Try again later.")}, nil
	}
	state := newState(userID, CommandInlineQuiz)
	state.Data[dataSince] = since.UTC().Format(time.RFC3339)
	state.History = []models.Turn{{Question: question}}
	return m.save(ctx, state, Reply{Text: "🧠 Question 1: " + question, Buttons: stopButtons()})
}

func (m *Machine) advanceQuiz(ctx context.Context, state *State, input string) ([]Reply, error) {
	if m.ai == nil {
		m.finish(ctx, state.UserID)
		return []Reply{text(aiDisabledText)}, nil
	}
	answerLastTurn(state, input)

	since, err := time.Parse(time.RFC3339, state.Data[dataSince])
	if err != nil {
		return nil, fmt.Errorf("corrupt quiz start %q: %w", state.Data[dataSince], err)
	}
	entries, err := m.store.GetEntriesInRange(ctx, state.UserID, since, m.now().Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz entries: %w", err)
	}

	question, ok := m.ai.GetNextQuestion(ctx, entries, state.History)
	if !ok {
		m.finish(ctx, state.UserID)
		answered := len(state.History)
		return []Reply{text(fmt.Sprintf("🎉 Quiz complete! You answered %d %s.", answered, plural(answered, "question", "questions")))}, nil
	}
	state.History = append(state.History, models.Turn{Question: question})
	state.Step++
	return m.save(ctx, state, Reply{
		Text:    fmt.Sprintf("🧠 Question %d: %s", len(state.History), question),
		Buttons: stopButtons(),
	})
}

// answerLastTurn records the user's answer to the pending question
func answerLastTurn(state *State, answer string) {
	if n := len(state.History); n > 0 && state.History[n-1].Answer == "" {
		state.History[n-1].Answer = answer
		return
	}
	state.History = append(state.History, models.Turn{Answer: answer})
}

// extractTags returns the #hashtags of a message
func extractTags(content string) []string {
	var tags []string
	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, "#") {
			continue
		}
		tag := strings.Trim(word, "#.,!?;:()[]{}\"'")
		if tag != "" && len(tag) <= maxTagLength {
			tags = append(tags, tag)
		}
	}
	return tags
}
