package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/diarybot/internal/analytics"
	"github.com/example/diarybot/internal/conversation"
	"github.com/example/diarybot/internal/excel"
)

const (
	notUnderstoodText = "I don't understand. Use /menu to show the main menu."
	adminOnlyText     = "This command is only available for administrators."
	importHelpText    = "📥 Send me an .xlsx or .csv file to import entries.\n\n" +
		"Columns: A content, B category, C tags (comma separated), D difficulty 1-5, E confidence 1-5.\n" +
		"The first row is treated as a header."
)

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if message.Document != nil {
		b.handleDocument(ctx, message)
		return
	}

	if message.IsCommand() {
		switch strings.ToLower(message.Command()) {
		case "import":
			b.sendMessage(chatID, importHelpText, nil)
			return
		case "admin_stats":
			// Admin-only command
			if !b.admins.IsAdmin(userID) {
				b.sendMessage(chatID, adminOnlyText, menuButtons(conversation.MainMenu()))
				return
			}
			b.handleAdminStatsCommand(ctx, chatID)
			return
		}
	}

	replies := b.machine.HandleInboundMessage(ctx, userID, message.Text)
	if len(replies) == 0 {
		b.sendMessage(chatID, notUnderstoodText, menuButtons(conversation.MainMenu()))
		return
	}
	b.sendReplies(chatID, replies)
}

// handleCallbackQuery handles callback queries from buttons
func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Stop the client-side spinner first
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn("failed to answer callback", "callback_id", callback.ID, "error", err)
	}
	if callback.Message == nil || callback.From == nil {
		return
	}

	replies := b.machine.HandleButton(ctx, callback.From.ID, callback.Data)
	b.sendReplies(callback.Message.Chat.ID, replies)
}

// handleDocument imports diary entries from an uploaded spreadsheet
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	doc := message.Document

	if !excel.Supported(doc.FileName) {
		b.sendMessage(chatID, "⚠️ Only .xlsx and .csv files can be imported.", nil)
		return
	}
	if int64(doc.FileSize) > b.config.MaxImportSize {
		b.sendMessage(chatID, fmt.Sprintf("⚠️ The file is too large. The limit is %d MB.", b.config.MaxImportSize>>20), nil)
		return
	}

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.log.Error("failed to download document", "user_id", message.From.ID, "file", doc.FileName, "error", err)
		b.sendMessage(chatID, "⚠️ Could not download the file. Please try again.", nil)
		return
	}

	if _, err := b.store.FindOrCreateUser(ctx, message.From.ID); err != nil {
		b.log.Error("failed to register user for import", "user_id", message.From.ID, "error", err)
		b.sendMessage(chatID, "⚠️ Something went wrong. Please try again.", nil)
		return
	}

	result, err := excel.Import(ctx, b.store, message.From.ID, bytes.NewReader(data), doc.FileName, excel.DefaultImportConfig())
	if err != nil {
		b.log.Warn("import failed", "user_id", message.From.ID, "file", doc.FileName, "error", err)
		b.sendMessage(chatID, fmt.Sprintf("⚠️ Import failed: %v", err), nil)
		return
	}
	b.log.Info("entries imported", "user_id", message.From.ID, "file", doc.FileName,
		"created", result.Created, "skipped", result.Skipped)
	b.sendMessage(chatID, formatImportResult(result, b.config.MaxImportErrors), menuButtons(conversation.MainMenu()))
}

// download fetches a Telegram file, refusing anything over the import limit
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.config.MaxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > b.config.MaxImportSize {
		return nil, fmt.Errorf("file exceeds %d bytes", b.config.MaxImportSize)
	}
	return data, nil
}

func formatImportResult(result *excel.ImportResult, maxErrors int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📥 Import finished\n\nRows read: %d\nEntries created: %d\nSkipped: %d",
		result.TotalProcessed, result.Created, result.Skipped)
	if len(result.Errors) > 0 {
		sb.WriteString("\n\nProblems:")
		for i, e := range result.Errors {
			if i == maxErrors {
				fmt.Fprintf(&sb, "\n…and %d more", len(result.Errors)-maxErrors)
				break
			}
			sb.WriteString("\n• " + e)
		}
	}
	return sb.String()
}

func (b *Bot) handleAdminStatsCommand(ctx context.Context, chatID int64) {
	users, err := b.store.CountUsers(ctx)
	if err != nil {
		b.log.Error("failed to count users", "error", err)
		b.sendMessage(chatID, "⚠️ Something went wrong. Please try again.", nil)
		return
	}
	entries, err := b.store.CountEntries(ctx)
	if err != nil {
		b.log.Error("failed to count entries", "error", err)
		b.sendMessage(chatID, "⚠️ Something went wrong. Please try again.", nil)
		return
	}

	statsText := "System Statistics\n\n" +
		fmt.Sprintf("Total users: %d\n", users) +
		fmt.Sprintf("Total entries: %d\n", entries) +
		fmt.Sprintf("Entries per user: %.1f\n", analytics.AveragePerUser(entries, users)) +
		fmt.Sprintf("Server time: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	b.sendMessage(chatID, statsText, nil)
}
