package conversation

import (
	"time"

	"github.com/example/diarybot/pkg/models"
)

// Command identifies which multi-step dialog a user is in
type Command string

const (
	CommandLog                Command = "log"
	CommandQuizTime           Command = "quiztime"
	CommandQuickLearn         Command = "quick_learn"
	CommandWaitingForLearning Command = "waiting_for_learning"
	CommandSearch             Command = "search"
	CommandCustomGoal         Command = "custom_goal"
	CommandAIConvo            Command = "ai_convo"
	CommandInlineQuiz         Command = "inline_quiz"
)

// Keys used in State.Data
const (
	dataWork     = "work"
	dataLearn    = "learn"
	dataBlockers = "blockers"
	dataContent  = "content"
	dataDay      = "day"
	dataSince    = "since"
)

// State is the in-progress dialog of one user. It lives only in a StateStore,
// never in the entry store.
type State struct {
	UserID    int64             `json:"user_id"`
	Command   Command           `json:"command"`
	Step      int               `json:"step"`
	Data      map[string]string `json:"data"`
	History   []models.Turn     `json:"history,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newState(userID int64, cmd Command) *State {
	return &State{
		UserID:  userID,
		Command: cmd,
		Step:    1,
		Data:    make(map[string]string),
	}
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	if s.History != nil {
		c.History = append([]models.Turn(nil), s.History...)
	}
	return &c
}

// Button is an inline button; Payload is what HandleButton receives when it is pressed
type Button struct {
	Text    string
	Payload string
}

// Reply is one outbound message
type Reply struct {
	Text    string
	Buttons [][]Button
}

func text(s string) Reply {
	return Reply{Text: s}
}
