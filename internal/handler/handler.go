package handler

import (
	"context"

	"github.com/go-telegram/bot"

	"github.com/set-night/trackerbot/internal/conversation"
)

// Engine consumes decoded updates.
type Engine interface {
	Handle(ctx context.Context, u conversation.Update)
}

// CallbackAnswerer acknowledges inline button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string)
}

// Handler decodes bot updates and routes them to the conversation engine.
type Handler struct {
	bot      *bot.Bot
	engine   Engine
	answerer CallbackAnswerer
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot      *bot.Bot
	Engine   Engine
	Answerer CallbackAnswerer
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:      deps.Bot,
		engine:   deps.Engine,
		answerer: deps.Answerer,
	}
}
