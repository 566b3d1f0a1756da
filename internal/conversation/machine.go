// Package conversation drives the multi-step chat dialogs. The transport calls
// HandleInboundMessage for every text message and HandleButton for every
// pressed inline button; both return the replies to send back.
//
// A slash command (or a menu/retry button) always abandons the dialog the user
// was in. The abandoned dialog is deleted without being advanced or committed.
package conversation

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/logger"
	"github.com/example/diarybot/pkg/models"
)

const lockStripes = 64

// Store is the part of the entry store used by dialogs
type Store interface {
	FindOrCreateUser(ctx context.Context, id int64) (*models.User, error)
	SetQuizTime(ctx context.Context, id int64, day, hour int) error
	SetUserGoal(ctx context.Context, id int64, goal *int) error
	GetUserGoal(ctx context.Context, id int64) (*int, error)
	UpdateSettings(ctx context.Context, id int64, settings models.Settings) error
	AddEntry(ctx context.Context, userID int64, content string, opts models.EntryOptions) (*models.Entry, error)
	AddLog(ctx context.Context, userID int64, work, learned, blockers string) (*models.WorkLog, error)
	GetEntriesInRange(ctx context.Context, userID int64, start, end time.Time) ([]models.Entry, error)
	GetTodayCount(ctx context.Context, userID int64, now time.Time) (int, error)
	SearchEntries(ctx context.Context, userID int64, query string) ([]models.Entry, error)
}

// Summarizer produces AI text. Implementations never fail; they return an
// apology instead.
type Summarizer interface {
	GenerateFollowUp(ctx context.Context, text string) string
	GenerateAnalysis(ctx context.Context, entries []models.Entry, mode ai.Mode) string
	GetNextQuestion(ctx context.Context, entries []models.Entry, history []models.Turn) (string, bool)
}

// Options configures a Machine. Store is required.
// A nil Summarizer turns the AI features off.
type Options struct {
	Store      Store
	States     StateStore
	Summarizer Summarizer
	Logger     *logger.Logger
	Rand       *rand.Rand
	Now        func() time.Time
}

// Machine routes messages and button presses to the user's dialog
type Machine struct {
	store  Store
	states StateStore
	ai     Summarizer
	log    *logger.Logger
	now    func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	locks [lockStripes]sync.Mutex
}

func NewMachine(opts Options) *Machine {
	m := &Machine{
		store:  opts.Store,
		states: opts.States,
		ai:     opts.Summarizer,
		log:    opts.Logger,
		now:    opts.Now,
		rnd:    opts.Rand,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	if m.rnd == nil {
		m.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.states == nil {
		m.states = NewMemoryStateStore(DefaultStateTTL, m.now)
	}
	return m
}

// HandleInboundMessage processes one text message. An empty result means the
// message was not part of any dialog.
func (m *Machine) HandleInboundMessage(ctx context.Context, userID int64, message string) []Reply {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	message = strings.TrimSpace(message)
	if strings.HasPrefix(message, "/") {
		name, args := parseCommand(message)
		return m.runCommand(ctx, userID, name, args)
	}

	state, ok, err := m.states.Get(ctx, userID)
	if err != nil {
		return m.fail(ctx, userID, "", err)
	}
	if !ok {
		return nil
	}

	replies, err := m.advance(ctx, state, message)
	if err != nil {
		return m.fail(ctx, userID, retryCommand(state.Command), err)
	}
	return replies
}

// HandleButton processes a pressed inline button identified by its payload
func (m *Machine) HandleButton(ctx context.Context, userID int64, data string) []Reply {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	kind, value, _ := strings.Cut(strings.TrimSpace(data), ":")
	switch kind {
	case payloadMenu, payloadRetry:
		return m.runCommand(ctx, userID, value, "")
	case payloadStop:
		return m.runCommand(ctx, userID, "stop", "")
	}

	var (
		replies []Reply
		err     error
		retry   string
	)
	switch kind {
	case payloadCategory:
		replies, err = m.selectCategory(ctx, userID, value)
		retry = "learn"
	case payloadQuizDay:
		m.abandon(ctx, userID)
		replies, err = m.selectQuizDay(ctx, userID, value)
		retry = "quiztime"
	case payloadGoal:
		m.abandon(ctx, userID)
		replies, err = m.selectGoal(ctx, userID, value)
		retry = "goal"
	case payloadAnalysis:
		m.abandon(ctx, userID)
		replies, err = m.selectAnalysis(ctx, userID, value)
		retry = "review"
	default:
		m.log.Warn("unknown button payload", "user_id", userID, "payload", data)
		return []Reply{text("🤷 Unknown action.")}
	}
	if err != nil {
		return m.fail(ctx, userID, retry, err)
	}
	return replies
}

// runCommand abandons the current dialog and executes the command
func (m *Machine) runCommand(ctx context.Context, userID int64, name, args string) []Reply {
	prev := m.abandon(ctx, userID)

	replies, err := m.command(ctx, userID, name, args, prev)
	if err != nil {
		return m.fail(ctx, userID, name, err)
	}
	return replies
}

// abandon deletes the user's dialog and returns it (nil when there was none)
func (m *Machine) abandon(ctx context.Context, userID int64) *State {
	prev, ok, err := m.states.Get(ctx, userID)
	if err != nil {
		m.log.Warn("failed to load state before abandoning it", "user_id", userID, "error", err)
	}
	if err := m.states.Delete(ctx, userID); err != nil {
		m.log.Warn("failed to delete state", "user_id", userID, "error", err)
	}
	if !ok {
		return nil
	}
	return prev
}

// fail logs a collaborator error, clears the dialog and builds the generic reply
func (m *Machine) fail(ctx context.Context, userID int64, command string, err error) []Reply {
	m.log.Error("dialog failed", "user_id", userID, "command", command, "error", err)
	if err := m.states.Delete(ctx, userID); err != nil {
		m.log.Warn("failed to clear state after error", "user_id", userID, "error", err)
	}

	reply := text("⚠️ Something went wrong. Please try again.")
	if command != "" {
		reply.Buttons = retryButtons(command)
	}
	return []Reply{reply}
}

// save persists an advanced dialog and returns the replies
func (m *Machine) save(ctx context.Context, state *State, replies ...Reply) ([]Reply, error) {
	if err := m.states.Put(ctx, state); err != nil {
		return nil, err
	}
	return replies, nil
}

// finish ends a dialog whose work has already been committed
func (m *Machine) finish(ctx context.Context, userID int64) {
	if err := m.states.Delete(ctx, userID); err != nil {
		m.log.Warn("failed to delete finished state", "user_id", userID, "error", err)
	}
}

func (m *Machine) userLock(userID int64) *sync.Mutex {
	return &m.locks[uint64(userID)%lockStripes]
}

func (m *Machine) pick(options []string) string {
	m.rndMu.Lock()
	defer m.rndMu.Unlock()
	return options[m.rnd.Intn(len(options))]
}

// parseCommand splits "/name@bot args" into "name" and "args"
func parseCommand(message string) (string, string) {
	head, args, _ := strings.Cut(strings.TrimPrefix(message, "/"), " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args)
}

// retryCommand is the command that restarts a dialog
func retryCommand(cmd Command) string {
	switch cmd {
	case CommandLog:
		return "log"
	case CommandQuizTime:
		return "quiztime"
	case CommandQuickLearn:
		return "quick"
	case CommandWaitingForLearning:
		return "learn"
	case CommandSearch:
		return "search"
	case CommandCustomGoal:
		return "goal"
	case CommandAIConvo:
		return "chat"
	case CommandInlineQuiz:
		return "quiz"
	}
	return ""
}
