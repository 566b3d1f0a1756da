package conversation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/pkg/models"
)

func TestIdleTextIsNoop(t *testing.T) {
	h := newHarness(t, true)
	assert.Empty(t, h.send("hello there"))
	assert.Zero(t, h.store.writes)
}

func TestLogFlowCommitsOnce(t *testing.T) {
	h := newHarness(t, false)

	replies := h.send("/log")
	require.Len(t, replies, 1)
	assert.Contains(t, logWorkPrompts, replies[0].Text)

	replies = h.send("Worked on X")
	require.Len(t, replies, 1)
	assert.Contains(t, logLearnPrompts, replies[0].Text)
	assert.Empty(t, h.store.logs)

	replies = h.send("Learned Y")
	require.Len(t, replies, 1)
	assert.Contains(t, logBlockerPrompts, replies[0].Text)
	assert.Empty(t, h.store.logs)

	h.send("none")
	require.Len(t, h.store.logs, 1)
	log := h.store.logs[0]
	assert.Equal(t, testUser, log.UserID)
	assert.Equal(t, "Worked on X", log.Work)
	assert.Equal(t, "Learned Y", log.Learned)
	assert.Equal(t, "none", log.Blockers)

	_, ok := h.state()
	assert.False(t, ok)
}

func TestLogFlowStartsFollowUpDialog(t *testing.T) {
	h := newHarness(t, true)
	h.ai.followUps = []string{"Why was Y hard?", "And then?"}

	h.send("/log")
	h.send("Worked on X")
	h.send("Learned Y")
	replies := h.send("none")

	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Log saved")
	assert.Equal(t, "Why was Y hard?", replies[1].Text)
	assert.Equal(t, []string{payloadStop}, payloads(replies[1]))
	assert.Equal(t, []string{"Learned Y"}, h.ai.followUpInputs)
	require.Len(t, h.store.logs, 1)

	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandAIConvo, state.Command)
	assert.Equal(t, []models.Turn{{Question: "Why was Y hard?"}}, state.History)

	replies = h.send("Because of Z")
	require.Len(t, replies, 1)
	assert.Equal(t, "And then?", replies[0].Text)
	state, _ = h.state()
	assert.Equal(t, []models.Turn{
		{Question: "Why was Y hard?", Answer: "Because of Z"},
		{Question: "And then?"},
	}, state.History)

	replies = h.press("stop")
	assert.Equal(t, "👋 Conversation ended.", joined(replies))
	_, ok = h.state()
	assert.False(t, ok)
	assert.Len(t, h.store.logs, 1)
}

func TestQuizTimeFlow(t *testing.T) {
	h := newHarness(t, false)

	replies := h.send("/quiztime")
	require.Len(t, replies, 1)
	assert.Len(t, payloads(replies[0]), 7)
	assert.Contains(t, payloads(replies[0]), "quizday:3")

	replies = h.press("quizday:3")
	assert.Contains(t, joined(replies), "Wednesday")

	replies = h.send("25")
	assert.Contains(t, joined(replies), "0 to 23")
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandQuizTime, state.Command)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, map[string]string{"day": "3"}, state.Data)
	assert.Zero(t, h.store.writes)
	assert.Equal(t, models.DefaultQuizDay, h.store.userCopy(testUser).QuizDay)

	h.send("soon")
	assert.Zero(t, h.store.writes)

	replies = h.send("18")
	assert.Contains(t, joined(replies), "Wednesday at 18:00")
	user := h.store.userCopy(testUser)
	assert.Equal(t, 3, user.QuizDay)
	assert.Equal(t, 18, user.QuizTime)
	_, ok = h.state()
	assert.False(t, ok)
}

func TestQuizDayButtonRejectsUnknownDay(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, "🤷 Unknown day.", joined(h.press("quizday:9")))
	_, ok := h.state()
	assert.False(t, ok)
}

func TestCommandAbandonsActiveFlow(t *testing.T) {
	h := newHarness(t, false)

	h.send("/log")
	h.send("Worked on X")
	before, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, 2, before.Step)

	replies := h.send("/stats")
	assert.Contains(t, joined(replies), "Your stats")
	_, ok = h.state()
	assert.False(t, ok)

	assert.Empty(t, h.send("Learned Y"))
	assert.Empty(t, h.send("none"))
	assert.Empty(t, h.store.logs)
}

func TestEveryCommandAbandonsEveryFlow(t *testing.T) {
	starters := map[Command]func(h *harness){
		CommandLog:                func(h *harness) { h.send("/log") },
		CommandQuizTime:           func(h *harness) { h.press("quizday:1") },
		CommandQuickLearn:         func(h *harness) { h.send("/quick") },
		CommandWaitingForLearning: func(h *harness) { h.send("/learn") },
		CommandSearch:             func(h *harness) { h.send("/search") },
		CommandCustomGoal:         func(h *harness) { h.press("goal:custom") },
		CommandAIConvo:            func(h *harness) { h.send("/chat") },
	}
	interrupts := []func(h *harness) []Reply{
		func(h *harness) []Reply { return h.send("/stats") },
		func(h *harness) []Reply { return h.send("/help") },
		func(h *harness) []Reply { return h.send("/unknown") },
		func(h *harness) []Reply { return h.press("menu:goal") },
	}

	for cmd, start := range starters {
		for i, interrupt := range interrupts {
			t.Run(fmt.Sprintf("%s/%d", cmd, i), func(t *testing.T) {
				h := newHarness(t, true)
				start(h)
				state, ok := h.state()
				require.True(t, ok)
				require.Equal(t, cmd, state.Command)

				assert.NotEmpty(t, interrupt(h))
				_, ok = h.state()
				assert.False(t, ok)
				assert.Empty(t, h.send("42"))
			})
		}
	}
}

func TestCommandStartsNewFlowAfterAbandoning(t *testing.T) {
	h := newHarness(t, false)
	h.send("/learn")
	h.send("half a thought")

	h.send("/log")
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandLog, state.Command)
	assert.Equal(t, 1, state.Step)
	assert.Empty(t, state.Data)
	assert.Empty(t, h.store.entries)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, "🤷 Nothing to cancel.", joined(h.send("/cancel")))

	h.send("/learn")
	assert.Equal(t, "❌ Cancelled.", joined(h.send("/cancel")))
	_, ok := h.state()
	assert.False(t, ok)
}

func TestLearnFlowWithCategoryButton(t *testing.T) {
	h := newHarness(t, false)

	h.send("/learn")
	replies := h.send("Read about #Golang generics")
	require.Len(t, replies, 1)
	assert.Contains(t, payloads(replies[0]), "cat:tech")
	assert.Contains(t, payloads(replies[0]), "cat:none")

	replies = h.send("more text")
	assert.Contains(t, joined(replies), "choose a category")
	state, _ := h.state()
	assert.Equal(t, "Read about #Golang generics", state.Data["content"])
	assert.Equal(t, 2, state.Step)

	assert.Equal(t, "🤷 Unknown category.", joined(h.press("cat:cooking")))
	assert.Empty(t, h.store.entries)

	replies = h.press("cat:tech")
	assert.Contains(t, joined(replies), "Saved to Tech/Programming")
	assert.Contains(t, joined(replies), "Entries today: 1")
	require.Len(t, h.store.entries, 1)
	entry := h.store.entries[0]
	require.NotNil(t, entry.Category)
	assert.Equal(t, models.CategoryTech, *entry.Category)
	assert.Equal(t, models.Tags{"golang"}, entry.Tags)
	assert.Equal(t, models.SourceChat, entry.Source)

	_, ok := h.state()
	assert.False(t, ok)
	assert.Contains(t, joined(h.press("cat:tech")), "expired")
	assert.Len(t, h.store.entries, 1)
}

func TestLearnWithoutCategory(t *testing.T) {
	h := newHarness(t, false)
	h.send("/learn")
	h.send("Something")
	h.press("cat:none")
	require.Len(t, h.store.entries, 1)
	assert.Nil(t, h.store.entries[0].Category)
}

func TestQuickLearnReportsGoalProgress(t *testing.T) {
	h := newHarness(t, false)

	assert.Contains(t, joined(h.press("goal:5")), "Daily goal set to 5")

	h.send("/quick")
	h.send("Practiced Spanish vocabulary")
	require.Len(t, h.store.entries, 1)
	require.NotNil(t, h.store.entries[0].Category)
	assert.Equal(t, models.CategoryLanguage, *h.store.entries[0].Category)

	h.send("/quick Fixed a bug in the api server")
	replies := h.send("/quick another one")
	assert.Contains(t, joined(replies), "3/5 (60%)")

	h.send("/quick four")
	h.send("/quick five")
	replies = h.send("/quick six")
	assert.Contains(t, joined(replies), "6/5 (100%)")
	assert.Contains(t, joined(replies), "Goal reached")
}

func TestCustomGoalFlow(t *testing.T) {
	h := newHarness(t, false)

	replies := h.send("/goal")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "don't have a daily goal")
	assert.Equal(t, []string{"goal:1", "goal:3", "goal:5", "goal:10", "goal:custom", "goal:off"}, payloads(replies[0]))

	h.press("goal:custom")
	for _, bad := range []string{"abc", "0", "51", "2.5"} {
		assert.Contains(t, joined(h.send(bad)), "1 to 50", bad)
	}
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandCustomGoal, state.Command)
	assert.Zero(t, h.store.writes)

	assert.Contains(t, joined(h.send("7")), "Daily goal set to 7")
	user := h.store.userCopy(testUser)
	require.NotNil(t, user.DailyGoal)
	assert.Equal(t, 7, *user.DailyGoal)
	_, ok = h.state()
	assert.False(t, ok)

	assert.Contains(t, joined(h.send("/goal")), "Your daily goal: 7 entries")

	h.press("goal:off")
	assert.Nil(t, h.store.userCopy(testUser).DailyGoal)
	assert.Equal(t, "🤷 Unknown goal.", joined(h.press("goal:99")))
}

func TestSearch(t *testing.T) {
	h := newHarness(t, false)
	h.send("/quick Read about Kubernetes operators")
	h.send("/quick Went running")

	replies := h.send("/search kubernetes")
	assert.Contains(t, joined(replies), "Found 1 entry")
	assert.Contains(t, joined(replies), "Kubernetes operators")

	h.send("/search")
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandSearch, state.Command)

	replies = h.send("zebra")
	assert.Contains(t, joined(replies), "Nothing found")
	_, ok = h.state()
	assert.False(t, ok)
}

func TestEmptyInputReprompts(t *testing.T) {
	h := newHarness(t, false)
	h.send("/log")
	assert.Equal(t, emptyInputMsg, joined(h.send("   ")))
	state, _ := h.state()
	assert.Equal(t, 1, state.Step)
	assert.Empty(t, state.Data)
}

func TestStoreFailureClearsStateAndOffersRetry(t *testing.T) {
	h := newHarness(t, true)
	h.send("/log")
	h.send("Worked on X")
	h.send("Learned Y")

	h.store.fail(errUnavailable)
	replies := h.send("none")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Something went wrong")
	assert.Equal(t, []string{"retry:log"}, payloads(replies[0]))
	_, ok := h.state()
	assert.False(t, ok)
	assert.Empty(t, h.ai.followUpInputs)

	h.store.fail(nil)
	replies = h.press("retry:log")
	assert.Contains(t, logWorkPrompts, joined(replies))
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandLog, state.Command)
}

func TestCategoryButtonFailureOffersRetry(t *testing.T) {
	h := newHarness(t, false)
	h.send("/learn")
	h.send("Something")
	h.store.fail(errUnavailable)

	replies := h.press("cat:general")
	require.Len(t, replies, 1)
	assert.Equal(t, []string{"retry:learn"}, payloads(replies[0]))
	_, ok := h.state()
	assert.False(t, ok)
}

func TestInlineQuiz(t *testing.T) {
	h := newHarness(t, true)
	h.ai.questions = []string{"What is a goroutine?", "What is a channel?"}

	replies := h.send("/quiz")
	assert.Contains(t, joined(replies), "at least 3 entries")
	_, ok := h.state()
	assert.False(t, ok)

	for _, content := range []string{"goroutines", "channels", "select"} {
		h.send("/quick " + content)
	}
	// older than a week, not part of the quiz
	h.store.entries[0].CreatedAt = h.now.AddDate(0, 0, -8)
	assert.Contains(t, joined(h.send("/quiz")), "You have 2 so far")
	h.send("/quick mutexes")

	replies = h.send("/quiz")
	assert.Equal(t, "🧠 Question 1: What is a goroutine?", joined(replies))

	replies = h.send("A lightweight thread")
	assert.Equal(t, "🧠 Question 2: What is a channel?", joined(replies))

	replies = h.send("A typed pipe")
	assert.Contains(t, joined(replies), "answered 2 questions")
	_, ok = h.state()
	assert.False(t, ok)

	require.Len(t, h.ai.histories, 3)
	assert.Empty(t, h.ai.histories[0])
	assert.Equal(t, []models.Turn{
		{Question: "What is a goroutine?", Answer: "A lightweight thread"},
		{Question: "What is a channel?", Answer: "A typed pipe"},
	}, h.ai.histories[2])
}

func TestAnalysisCommands(t *testing.T) {
	h := newHarness(t, true)
	assert.Contains(t, joined(h.send("/review")), "No entries in the past week")

	h.send("/quick one")
	h.send("/quick two")

	replies := h.send("/review")
	require.Len(t, replies, 1)
	assert.Equal(t, "summary of **", replies[0].Text)
	assert.Contains(t, payloads(replies[0]), "analysis:quiz")

	assert.Equal(t, "insights of **", joined(h.send("/insights")))
	assert.Equal(t, "quiz of **", joined(h.press("analysis:quiz")))
	assert.Equal(t, "🤷 Unknown analysis.", joined(h.press("analysis:poem")))
	assert.Equal(t, []ai.Mode{ai.ModeSummary, ai.ModeInsights, ai.ModeQuiz}, h.ai.modes)
}

func TestAIFeaturesWithoutSummarizer(t *testing.T) {
	h := newHarness(t, false)
	for _, cmd := range []string{"/review", "/insights", "/quiz", "/chat"} {
		assert.Equal(t, aiDisabledText, joined(h.send(cmd)), cmd)
	}
	_, ok := h.state()
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	h := newHarness(t, false)
	h.send("/quick learned about #go interfaces")
	h.now = h.now.AddDate(0, 0, 1)
	h.send("/quick practiced spanish grammar")
	h.send("/quick more grammar")

	text := joined(h.send("/stats"))
	assert.Contains(t, text, "Streak: 2 days")
	assert.Contains(t, text, "Today: 2")
	assert.Contains(t, text, "Last 7 days: 3")
	assert.Contains(t, text, "1. Language - 2")
	assert.NotContains(t, text, "Daily goal")
}

func TestStartAndMenu(t *testing.T) {
	h := newHarness(t, false)
	replies := h.send("/start")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Welcome")
	assert.Contains(t, payloads(replies[0]), "menu:log")
	_, err := h.store.GetUserGoal(context.Background(), testUser)
	assert.NoError(t, err)

	replies = h.press("menu:learn")
	assert.Contains(t, joined(replies), "What did you learn?")
	state, ok := h.state()
	require.True(t, ok)
	assert.Equal(t, CommandWaitingForLearning, state.Command)

	assert.Contains(t, joined(h.send("/bogus")), "Unknown command")
	assert.Equal(t, "🤷 Unknown action.", joined(h.press("launch:rocket")))
}

func TestNotifyAndTimezone(t *testing.T) {
	h := newHarness(t, false)

	assert.Contains(t, joined(h.send("/notify")), "Reminders are on")
	h.send("/notify off")
	assert.False(t, h.store.userCopy(testUser).Settings.NotificationsEnabled())
	h.send("/notify ON")
	assert.True(t, h.store.userCopy(testUser).Settings.NotificationsEnabled())

	assert.Contains(t, joined(h.send("/timezone Mars/Olympus")), "don't know the timezone")
	assert.Contains(t, joined(h.send("/timezone UTC")), "Timezone set to UTC")
	assert.Equal(t, "UTC", h.store.userCopy(testUser).Settings.Timezone)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args string
	}{
		{"/stats", "stats", ""},
		{"/Search@DiaryBot  kubernetes  operators ", "search", "kubernetes  operators"},
		{"/quick   ", "quick", ""},
		{"/", "", ""},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
	}
}

func TestPromptsFollowInjectedRand(t *testing.T) {
	pick := func(seed int64) []string {
		m := NewMachine(Options{Store: newFakeStore(time.Now), Rand: rand.New(rand.NewSource(seed))})
		var out []string
		for i := 0; i < 5; i++ {
			out = append(out, joined(m.HandleInboundMessage(context.Background(), 1, "/log")))
		}
		return out
	}
	assert.Equal(t, pick(7), pick(7))
}

func TestConcurrentMessagesAreSerializedPerUser(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, user := range []int64{1, 2, 65} {
			wg.Add(1)
			go func(user int64, i int) {
				defer wg.Done()
				h.m.HandleInboundMessage(ctx, user, fmt.Sprintf("/quick entry %d", i))
			}(user, i)
		}
	}
	wg.Wait()
	assert.Len(t, h.store.entries, 60)

	for _, user := range []int64{1, 2} {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			h.m.HandleInboundMessage(ctx, user, "/log")
			h.m.HandleInboundMessage(ctx, user, "work")
			h.m.HandleInboundMessage(ctx, user, "learn")
			h.m.HandleInboundMessage(ctx, user, "none")
		}(user)
	}
	wg.Wait()
	assert.Len(t, h.store.logs, 2)
}
