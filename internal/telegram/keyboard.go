package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/domain"
)

// Callback data.
const (
	CallbackCreateIssue = "create_issue"
	CallbackSubmitIssue = "submit_issue"
	CallbackSkip        = "skip_description"
	CallbackMyIssues    = "my_issues"
	CallbackMyInfo      = "my_info"
	CallbackMainMenu    = "main_menu"
	CallbackIssuePrefix = "issue_"
	CallbackReplyPrefix = "reply_"
)

// Reply keyboard labels, matched verbatim on incoming text.
const (
	ButtonCreateIssue  = "📋 Создать задачу"
	ButtonMyIssues     = "📂 Мои задачи"
	ButtonMyInfo       = "👤 Моя информация"
	ButtonMainMenu     = "🔄 Главное меню"
	ButtonShareContact = "📲 Поделиться контактом"
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL inline keyboard button.
func URLButton(text, url string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text: text,
		URL:  url,
	}
}

// InlineKeyboard creates an inline keyboard from rows of buttons.
func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// ButtonRow creates a row of inline buttons.
func ButtonRow(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

func MainMenu() *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(InlineButton(ButtonCreateIssue, CallbackCreateIssue)),
		ButtonRow(InlineButton(ButtonMyIssues, CallbackMyIssues)),
		ButtonRow(InlineButton(ButtonMyInfo, CallbackMyInfo)),
	)
}

// MainReplyKeyboard is the persistent menu under the input field.
func MainReplyKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: ButtonCreateIssue}, {Text: ButtonMyIssues}},
			{{Text: ButtonMyInfo}},
		},
		ResizeKeyboard: true,
	}
}

func ContactKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: ButtonShareContact, RequestContact: true}},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

func CancelKeyboard() *models.InlineKeyboardMarkup {
	return InlineKeyboard(ButtonRow(InlineButton("🔄 Отмена", CallbackMainMenu)))
}

func DescriptionKeyboard() *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(InlineButton("⏭ Пропустить", CallbackSkip)),
		ButtonRow(InlineButton("🔄 Отмена", CallbackMainMenu)),
	)
}

func AttachmentKeyboard() *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(InlineButton("📤 Создать задачу", CallbackSubmitIssue)),
		ButtonRow(InlineButton("🔄 Отмена", CallbackMainMenu)),
	)
}

func BackToMenu() *models.InlineKeyboardMarkup {
	return InlineKeyboard(ButtonRow(InlineButton(ButtonMainMenu, CallbackMainMenu)))
}

// IssuesKeyboard lists issues one per row, followed by a menu button.
func IssuesKeyboard(issues []domain.Issue) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(issues)+1)
	for _, is := range issues {
		summary := is.Summary
		if summary == "" {
			summary = "Без описания"
		}
		rows = append(rows, ButtonRow(InlineButton(Truncate(is.Key+": "+summary, 64), CallbackIssuePrefix+is.Key)))
	}
	rows = append(rows, ButtonRow(InlineButton(ButtonMainMenu, CallbackMainMenu)))
	return InlineKeyboard(rows...)
}

// ReplyButton is attached to tracker notifications.
func ReplyButton(issueKey string) *models.InlineKeyboardMarkup {
	return InlineKeyboard(ButtonRow(InlineButton("💬 Ответить", CallbackReplyPrefix+issueKey)))
}

func IssueLinkKeyboard(url string) *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(URLButton("🔗 Открыть задачу", url)),
		ButtonRow(InlineButton(ButtonMainMenu, CallbackMainMenu)),
	)
}
