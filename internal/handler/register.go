package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/telegram"
)

// Register registers all command and callback handlers on the bot instance.
// Messages that match nothing here arrive through HandleDefault.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleMessage)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/skip", bot.MatchTypePrefix, h.handleMessage)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleMessage)

	// Menu callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackCreateIssue, bot.MatchTypeExact, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackMyIssues, bot.MatchTypeExact, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackMyInfo, bot.MatchTypeExact, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackMainMenu, bot.MatchTypeExact, h.handleCallback)

	// Issue flow callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackSubmitIssue, bot.MatchTypeExact, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackSkip, bot.MatchTypeExact, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackIssuePrefix, bot.MatchTypePrefix, h.handleCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackReplyPrefix, bot.MatchTypePrefix, h.handleCallback)
}

// HandleDefault receives every update no registered handler matched:
// plain text, photos, documents and contacts.
func (h *Handler) HandleDefault(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, b, update)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, b, update)
	}
}

func (h *Handler) handleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	u, ok := DecodeMessage(update.Message)
	if !ok {
		return
	}
	h.engine.Handle(ctx, u)
}

func (h *Handler) handleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	h.answerer.AnswerCallback(ctx, cq.ID, "")

	u, ok := DecodeCallback(cq)
	if !ok {
		return
	}
	h.engine.Handle(ctx, u)
}
