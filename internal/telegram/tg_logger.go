package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/config"
)

// TelegramLogger posts operational events to a staff chat, one forum topic
// per event type. Everything is a no-op when LOG_TELEGRAM_CHAT_ID is unset.
type TelegramLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewTelegramLogger(b *bot.Bot, cfg *config.Config) *TelegramLogger {
	return &TelegramLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError        LogType = "error"
	LogTypeRegistration LogType = "registration"
	LogTypeIssue        LogType = "issue"
)

func (l *TelegramLogger) Log(logType LogType, message string) {
	if l == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.getTopicID(logType)
	if topicID == 0 {
		return
	}

	// Truncate if too long
	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       models.ParseModeHTML,
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *TelegramLogger) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ <b>Error</b>\n\n<b>Context:</b> %s\n<b>Error:</b> <code>%s</code>\n<b>Time:</b> %s",
		html.EscapeString(context), html.EscapeString(err.Error()), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

func (l *TelegramLogger) LogRegistration(telegramID int64, name, username, phone string) {
	msg := fmt.Sprintf("👤 <b>New Registration</b>\n\n<b>ID:</b> <code>%d</code>\n<b>Name:</b> %s\n<b>Phone:</b> %s",
		telegramID, html.EscapeString(name), html.EscapeString(phone))
	if username != "" {
		msg += "\n<b>Username:</b> @" + html.EscapeString(username)
	}
	l.Log(LogTypeRegistration, msg)
}

func (l *TelegramLogger) LogIssueCreated(telegramID int64, issueKey, summary string, attachments int) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf("📋 <b>Issue Created</b>\n\n<b>User:</b> <code>%d</code>\n<b>Issue:</b> <a href=\"%s\">%s</a>\n<b>Summary:</b> %s\n<b>Attachments:</b> %d",
		telegramID, html.EscapeString(l.cfg.IssueURL(issueKey)), html.EscapeString(issueKey), html.EscapeString(summary), attachments)
	l.Log(LogTypeIssue, msg)
}

func (l *TelegramLogger) getTopicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeRegistration:
		return l.cfg.LogTopicRegistration
	case LogTypeIssue:
		return l.cfg.LogTopicIssue
	default:
		return 0
	}
}
