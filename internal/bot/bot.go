package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/diarybot/internal/config"
	"github.com/example/diarybot/internal/conversation"
	"github.com/example/diarybot/internal/excel"
	"github.com/example/diarybot/internal/logger"
	"github.com/example/diarybot/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// menuButtons converts dialog buttons to menu buttons
func menuButtons(buttons [][]conversation.Button) [][]MenuButton {
	rows := make([][]MenuButton, 0, len(buttons))
	for _, row := range buttons {
		menuRow := make([]MenuButton, 0, len(row))
		for _, button := range row {
			menuRow = append(menuRow, MenuButton{Text: button.Text, CallbackData: button.Payload})
		}
		rows = append(rows, menuRow)
	}
	return rows
}

// Machine is the dialog engine the bot forwards messages to
type Machine interface {
	HandleInboundMessage(ctx context.Context, userID int64, message string) []conversation.Reply
	HandleButton(ctx context.Context, userID int64, data string) []conversation.Reply
}

// Store is the part of the entry store the bot uses directly
type Store interface {
	excel.EntryStore
	FindOrCreateUser(ctx context.Context, id int64) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
	CountEntries(ctx context.Context) (int, error)
}

// telegram is the part of the Bot API client used to talk to users
type telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	botAPI  *tgbotapi.BotAPI
	api     telegram
	http    *http.Client
	machine Machine
	store   Store
	admins  *config.Config
	config  *BotConfig
	log     *logger.Logger
	wg      sync.WaitGroup
}

// New creates a new bot instance and authorizes it with Telegram
func New(cfg *config.Config, machine Machine, store Store, log *logger.Logger) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	b := newBot(botAPI, cfg, machine, store, log)
	b.botAPI = botAPI
	b.log.Info("authorized on account", "username", botAPI.Self.UserName)
	return b, nil
}

func newBot(api telegram, cfg *config.Config, machine Machine, store Store, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	botConfig := DefaultConfig()
	return &Bot{
		api:     api,
		http:    &http.Client{Timeout: botConfig.DownloadTimeout},
		machine: machine,
		store:   store,
		admins:  cfg,
		config:  botConfig,
		log:     log.With("component", "bot"),
	}
}

// Start receives updates until ctx is cancelled. Every update is handled in
// its own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// Stop waits for in-flight updates to finish or for ctx to expire
func (b *Bot) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.Info("bot stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bot stop: %w", ctx.Err())
	}
}

// Notify implements the scheduler.Notifier interface. Private chats share the
// user's id, so the user id is the chat id.
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = createKeyboard(menuButtons(conversation.MainMenu()))
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to notify user %d: %w", userID, err)
	}
	return nil
}

// sendReplies sends dialog replies in order, stopping at the first failure
func (b *Bot) sendReplies(chatID int64, replies []conversation.Reply) {
	for _, reply := range replies {
		var keyboard [][]MenuButton
		if len(reply.Buttons) > 0 {
			keyboard = menuButtons(reply.Buttons)
		}
		if err := b.sendMessage(chatID, reply.Text, keyboard); err != nil {
			return
		}
	}
}

// sendMessage sends a text with an optional inline keyboard
func (b *Bot) sendMessage(chatID int64, text string, keyboard [][]MenuButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = createKeyboard(keyboard)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("failed to send message", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}
