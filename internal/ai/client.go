package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/example/diarybot/internal/logger"
	"github.com/example/diarybot/pkg/models"
)

// MaxQuizQuestions is the number of questions after which an inline quiz ends
const MaxQuizQuestions = 5

// doneMarker is what the model answers when the quiz has run its course
const doneMarker = "DONE"

// ErrNoQuestion is returned when the model decided the quiz is over
var ErrNoQuestion = errors.New("no further question")

// Mode selects the kind of analysis GenerateAnalysis produces
type Mode string

const (
	ModeSummary  Mode = "summary"
	ModeQuiz     Mode = "quiz"
	ModeInsights Mode = "insights"
)

// ParseMode accepts one of the known analysis modes
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSummary, ModeQuiz, ModeInsights:
		return m, true
	}
	return "", false
}

// User-visible fallbacks used when the model cannot be reached
const (
	FollowUpFallback = "Sorry, I couldn't think of a follow-up question right now. What else did you notice today?"
	AnalysisFallback = "Sorry, I couldn't prepare your analysis right now. Please try again later."
	QuestionFallback = "Sorry, I couldn't come up with a question right now. Tell me one thing you remember from this week."
)

// Options configures a Client
type Options struct {
	Provider     string
	OpenAIKey    string
	AnthropicKey string
	Model        string
	Timeout      time.Duration
}

// Client generates follow-ups, analyses and quiz questions with an LLM
type Client struct {
	llm     llms.Model
	timeout time.Duration
	log     *logger.Logger
}

// New creates a client for the configured provider
func New(opts Options, log *logger.Logger) (*Client, error) {
	var (
		llm llms.Model
		err error
	)
	switch strings.ToLower(opts.Provider) {
	case "openai":
		openaiOpts := []openai.Option{openai.WithToken(opts.OpenAIKey)}
		if opts.Model != "" {
			openaiOpts = append(openaiOpts, openai.WithModel(opts.Model))
		}
		llm, err = openai.New(openaiOpts...)
	case "anthropic":
		anthropicOpts := []anthropic.Option{anthropic.WithToken(opts.AnthropicKey)}
		if opts.Model != "" {
			anthropicOpts = append(anthropicOpts, anthropic.WithModel(opts.Model))
		}
		llm, err = anthropic.New(anthropicOpts...)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", opts.Provider, err)
	}
	return NewWithModel(llm, opts.Timeout, log), nil
}

// NewWithModel wraps an existing model
func NewWithModel(llm llms.Model, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{llm: llm, timeout: timeout, log: log}
}

// FollowUp asks one short question about what the user just wrote
func (c *Client) FollowUp(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, fmt.Sprintf(followUpPrompt, text), llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("failed to generate follow-up: %w", err)
	}
	return clean(completion)
}

// GenerateFollowUp is FollowUp with the apology fallback
func (c *Client) GenerateFollowUp(ctx context.Context, text string) string {
	question, err := c.FollowUp(ctx, text)
	if err != nil {
		c.log.Error("AI follow-up failed", "error", err)
		return FollowUpFallback
	}
	return question
}

// Analysis produces a summary, quiz or insights over the entries
func (c *Client) Analysis(ctx context.Context, entries []models.Entry, mode Mode) (string, error) {
	var instruction string
	switch mode {
	case ModeSummary:
		instruction = summaryPrompt
	case ModeQuiz:
		instruction = quizPrompt
	case ModeInsights:
		instruction = insightsPrompt
	default:
		return "", fmt.Errorf("unknown analysis mode %q", mode)
	}

	answer, err := c.chat(ctx, systemPrompt, instruction+"\n\nEntries:\n"+formatEntries(entries))
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", mode, err)
	}
	return answer, nil
}

// GenerateAnalysis is Analysis with the apology fallback
func (c *Client) GenerateAnalysis(ctx context.Context, entries []models.Entry, mode Mode) string {
	answer, err := c.Analysis(ctx, entries, mode)
	if err != nil {
		c.log.Error("AI analysis failed", "mode", mode, "entries", len(entries), "error", err)
		return AnalysisFallback
	}
	return answer
}

// NextQuestion asks the model for the next quiz question given the turns so far.
// ErrNoQuestion means the quiz is complete.
func (c *Client) NextQuestion(ctx context.Context, entries []models.Entry, history []models.Turn) (string, error) {
	if len(history) >= MaxQuizQuestions {
		return "", ErrNoQuestion
	}

	var sb strings.Builder
	sb.WriteString(quizQuestionPrompt)
	sb.WriteString("\n\nEntries:\n")
	sb.WriteString(formatEntries(entries))
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for i, turn := range history {
			fmt.Fprintf(&sb, "Q%d: %s\nA%d: %s\n", i+1, turn.Question, i+1, turn.Answer)
		}
	}

	answer, err := c.chat(ctx, systemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("failed to generate quiz question: %w", err)
	}
	if strings.EqualFold(strings.Trim(answer, " .!\n"), doneMarker) {
		return "", ErrNoQuestion
	}
	return answer, nil
}

// GetNextQuestion is NextQuestion with the apology fallback.
// The bool is false once the quiz is over.
func (c *Client) GetNextQuestion(ctx context.Context, entries []models.Entry, history []models.Turn) (string, bool) {
	question, err := c.NextQuestion(ctx, entries, history)
	switch {
	case errors.Is(err, ErrNoQuestion):
		return "", false
	case err != nil:
		c.log.Error("AI quiz question failed", "turns", len(history), "error", err)
		return QuestionFallback, true
	}
	return question, true
}

func (c *Client) chat(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(0.7))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return clean(resp.Choices[0].Content)
}

func clean(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty response")
	}
	return s, nil
}

func formatEntries(entries []models.Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- [%s]", e.CreatedAt.Format("2006-01-02"))
		if e.Category != nil {
			fmt.Fprintf(&sb, " (%s)", e.Category.Label())
		}
		fmt.Fprintf(&sb, " %s\n", e.Content)
	}
	return sb.String()
}
