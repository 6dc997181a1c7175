package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
)

// Text is an outgoing text message.
type Text struct {
	ChatID int64
	Body   string
	HTML   bool
	Markup models.ReplyMarkup
}

// File is an outgoing upload. Name is what the recipient sees.
type File struct {
	Name string
	Data io.Reader
}

// Sender is the chat-side surface used by the services.
type Sender struct {
	b *bot.Bot
}

func NewSender(b *bot.Bot) *Sender {
	return &Sender{b: b}
}

// SendText sends a message and returns its id. An HTML message the backend
// cannot parse is resent as plain text.
func (s *Sender) SendText(ctx context.Context, t Text) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: t.ChatID,
		Text:   Truncate(t.Body, config.MaxTelegramMessageLen),
	}
	if t.Markup != nil {
		params.ReplyMarkup = t.Markup
	}
	if t.HTML {
		params.ParseMode = models.ParseModeHTML
	}

	msg, err := s.b.SendMessage(ctx, params)
	if err != nil && t.HTML && isParseError(err) {
		slog.Warn("html send failed, falling back to plain text", "chat_id", t.ChatID, "error", err)
		params.ParseMode = ""
		msg, err = s.b.SendMessage(ctx, params)
	}
	if err != nil {
		return 0, fmt.Errorf("send message: %w", classify(err))
	}
	return msg.ID, nil
}

func (s *Sender) SendDocument(ctx context.Context, chatID int64, f File) error {
	_, err := s.b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: f.Name, Data: f.Data},
	})
	if err != nil {
		return fmt.Errorf("send document %s: %w", f.Name, classify(err))
	}
	return nil
}

func (s *Sender) SendPhoto(ctx context.Context, chatID int64, f File) error {
	_, err := s.b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo:  &models.InputFileUpload{Filename: f.Name, Data: f.Data},
	})
	if err != nil {
		return fmt.Errorf("send photo %s: %w", f.Name, classify(err))
	}
	return nil
}

// SendMediaGroup sends up to ten photos as one album.
func (s *Sender) SendMediaGroup(ctx context.Context, chatID int64, files []File) error {
	media := make([]models.InputMedia, 0, len(files))
	for i, f := range files {
		media = append(media, &models.InputMediaPhoto{
			Media:           fmt.Sprintf("attach://photo%d", i),
			MediaAttachment: f.Data,
		})
	}
	_, err := s.b.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: chatID,
		Media:  media,
	})
	if err != nil {
		return fmt.Errorf("send media group: %w", classify(err))
	}
	return nil
}

// DeleteMessage is best-effort: a message that is already gone is not an error.
func (s *Sender) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := s.b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err == nil {
		return nil
	}
	err = classify(err)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil
	}
	return fmt.Errorf("delete message: %w", err)
}

func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string) {
	_, err := s.b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		slog.Debug("answer callback failed", "error", err)
	}
}

// FileURL returns the temporary download URL for a chat file.
func (s *Sender) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := s.b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return s.b.FileDownloadLink(file), nil
}

// Truncate cuts text to maxLen runes.
func Truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen-3]) + "..."
}
