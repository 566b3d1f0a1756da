package conversation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/pkg/models"
)

var errUnavailable = errors.New("database is unavailable")

type fakeStore struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[int64]*models.User
	entries []models.Entry
	logs    []models.WorkLog
	writes  int
	failing error
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{now: now, users: make(map[int64]*models.User)}
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	s.failing = err
	s.mu.Unlock()
}

func (s *fakeStore) FindOrCreateUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{
			ID:       id,
			QuizDay:  models.DefaultQuizDay,
			QuizTime: models.DefaultQuizTime,
			Settings: models.DefaultSettings(),
			JoinedAt: s.now().UTC(),
		}
		s.users[id] = u
	}
	u.LastActiveAt = s.now().UTC()
	c := *u
	return &c, nil
}

func (s *fakeStore) user(id int64) (*models.User, error) {
	if s.failing != nil {
		return nil, s.failing
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (s *fakeStore) SetQuizTime(ctx context.Context, id int64, day, hour int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(id)
	if err != nil {
		return err
	}
	s.writes++
	u.QuizDay, u.QuizTime = day, hour
	return nil
}

func (s *fakeStore) SetUserGoal(ctx context.Context, id int64, goal *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(id)
	if err != nil {
		return err
	}
	s.writes++
	u.DailyGoal = goal
	return nil
}

func (s *fakeStore) GetUserGoal(ctx context.Context, id int64) (*int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(id)
	if err != nil {
		return nil, err
	}
	return u.DailyGoal, nil
}

func (s *fakeStore) UpdateSettings(ctx context.Context, id int64, settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(id)
	if err != nil {
		return err
	}
	s.writes++
	u.Settings = settings.WithDefaults()
	return nil
}

func (s *fakeStore) AddEntry(ctx context.Context, userID int64, content string, opts models.EntryOptions) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	opts = opts.WithDefaults()
	s.writes++
	e := models.Entry{
		ID:            int64(len(s.entries) + 1),
		UserID:        userID,
		Content:       strings.TrimSpace(content),
		Category:      opts.Category,
		Tags:          models.Tags(opts.Tags),
		Source:        opts.Source,
		IsAIGenerated: opts.IsAIGenerated,
		CreatedAt:     s.now().UTC(),
	}
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *fakeStore) AddLog(ctx context.Context, userID int64, work, learned, blockers string) (*models.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	s.writes++
	l := models.WorkLog{ID: int64(len(s.logs) + 1), UserID: userID, Work: work, Learned: learned, Blockers: blockers, CreatedAt: s.now().UTC()}
	s.logs = append(s.logs, l)
	return &l, nil
}

func (s *fakeStore) GetEntriesInRange(ctx context.Context, userID int64, start, end time.Time) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	var out []models.Entry
	for _, e := range s.entries {
		if e.UserID == userID && !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetTodayCount(ctx context.Context, userID int64, now time.Time) (int, error) {
	start, end := analytics.DayBounds(now)
	entries, err := s.GetEntriesInRange(ctx, userID, start, end)
	return len(entries), err
}

func (s *fakeStore) SearchEntries(ctx context.Context, userID int64, query string) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	var out []models.Entry
	for _, e := range s.entries {
		if e.UserID == userID && strings.Contains(strings.ToLower(e.Content), strings.ToLower(query)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) userCopy(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

type fakeSummarizer struct {
	mu             sync.Mutex
	followUps      []string
	questions      []string
	followUpInputs []string
	histories      [][]models.Turn
	modes          []ai.Mode
}

func (f *fakeSummarizer) GenerateFollowUp(ctx context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUpInputs = append(f.followUpInputs, text)
	if len(f.followUps) == 0 {
		return "Tell me more?"
	}
	q := f.followUps[0]
	f.followUps = f.followUps[1:]
	return q
}

func (f *fakeSummarizer) GenerateAnalysis(ctx context.Context, entries []models.Entry, mode ai.Mode) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	return string(mode) + " of " + strings.Repeat("*", len(entries))
}

func (f *fakeSummarizer) GetNextQuestion(ctx context.Context, entries []models.Entry, history []models.Turn) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, append([]models.Turn(nil), history...))
	if len(f.questions) == 0 {
		return "", false
	}
	q := f.questions[0]
	f.questions = f.questions[1:]
	return q, true
}

type harness struct {
	t      *testing.T
	m      *Machine
	store  *fakeStore
	states *MemoryStateStore
	ai     *fakeSummarizer
	now    time.Time
}

const testUser int64 = 42

func newHarness(t *testing.T, withAI bool) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }
	h.store = newFakeStore(clock)
	h.states = NewMemoryStateStore(time.Hour, clock)

	opts := Options{
		Store:  h.store,
		States: h.states,
		Rand:   rand.New(rand.NewSource(1)),
		Now:    clock,
	}
	if withAI {
		h.ai = &fakeSummarizer{}
		opts.Summarizer = h.ai
	}
	h.m = NewMachine(opts)
	return h
}

func (h *harness) send(message string) []Reply {
	return h.m.HandleInboundMessage(context.Background(), testUser, message)
}

func (h *harness) press(payload string) []Reply {
	return h.m.HandleButton(context.Background(), testUser, payload)
}

func (h *harness) state() (*State, bool) {
	h.t.Helper()
	state, ok, err := h.states.Get(context.Background(), testUser)
	if err != nil {
		h.t.Fatalf("state store: %v", err)
	}
	return state, ok
}

func joined(replies []Reply) string {
	parts := make([]string, len(replies))
	for i, r := range replies {
		parts[i] = r.Text
	}
	return strings.Join(parts, "\n")
}

func payloads(r Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}
