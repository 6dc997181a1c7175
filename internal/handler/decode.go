package handler

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/conversation"
	"github.com/set-night/trackerbot/internal/domain"
	"github.com/set-night/trackerbot/internal/telegram"
)

// DecodeMessage turns a private chat message into an engine update.
// Messages the dialog has no use for (stickers, voice, group chats) are
// reported as not ok.
func DecodeMessage(msg *models.Message) (conversation.Update, bool) {
	if msg == nil || msg.From == nil || msg.Chat.Type != "private" {
		return conversation.Update{}, false
	}
	u := conversation.Update{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Username:  msg.From.Username,
	}

	switch {
	case msg.Contact != nil:
		u.Input = conversation.Contact{
			UserID:    msg.Contact.UserID,
			FirstName: msg.Contact.FirstName,
			LastName:  msg.Contact.LastName,
			Phone:     msg.Contact.PhoneNumber,
		}
	case len(msg.Photo) > 0 || msg.Document != nil:
		f := remoteFile(msg)
		if msg.MediaGroupID != "" {
			u.Input = conversation.AlbumFile{GroupID: msg.MediaGroupID, File: f, Caption: msg.Caption}
		} else {
			u.Input = conversation.File{File: f, Caption: msg.Caption}
		}
	case msg.Text != "":
		u.Input = decodeText(msg.Text)
	default:
		return conversation.Update{}, false
	}
	return u, true
}

func decodeText(text string) conversation.Input {
	t := strings.TrimSpace(text)
	cmd := strings.Fields(t)
	if len(cmd) > 0 && strings.HasPrefix(cmd[0], "/") {
		// "/start@SomeBot payload" -> "/start"
		name, _, _ := strings.Cut(cmd[0], "@")
		switch name {
		case "/start":
			return conversation.Start{}
		case "/skip":
			return conversation.Skip{}
		case "/cancel", "/menu":
			return conversation.Cancel{}
		}
	}
	switch t {
	case telegram.ButtonCreateIssue:
		return conversation.StartIssue{}
	case telegram.ButtonMyIssues:
		return conversation.ListIssues{}
	case telegram.ButtonMyInfo:
		return conversation.MyInfo{}
	case telegram.ButtonMainMenu:
		return conversation.Cancel{}
	}
	return conversation.Text{Text: text}
}

// remoteFile picks the largest photo size or the document.
func remoteFile(msg *models.Message) domain.RemoteFile {
	if msg.Document != nil {
		d := msg.Document
		name := d.FileName
		if name == "" {
			name = d.FileUniqueID
		}
		return domain.RemoteFile{
			FileID:   d.FileID,
			UniqueID: d.FileUniqueID,
			Name:     name,
			MimeType: d.MimeType,
			Size:     d.FileSize,
		}
	}
	p := msg.Photo[len(msg.Photo)-1]
	return domain.RemoteFile{
		FileID:   p.FileID,
		UniqueID: p.FileUniqueID,
		Name:     p.FileUniqueID + ".jpg",
		MimeType: "image/jpeg",
		Size:     int64(p.FileSize),
	}
}

// DecodeCallback turns an inline button press into an engine update.
func DecodeCallback(cq *models.CallbackQuery) (conversation.Update, bool) {
	if cq == nil {
		return conversation.Update{}, false
	}
	u := conversation.Update{
		UserID:    cq.From.ID,
		ChatID:    cq.From.ID,
		FirstName: cq.From.FirstName,
		LastName:  cq.From.LastName,
		Username:  cq.From.Username,
	}
	if m := cq.Message.Message; m != nil {
		if m.Chat.Type != "private" {
			return conversation.Update{}, false
		}
		u.ChatID = m.Chat.ID
	}

	data := cq.Data
	switch {
	case data == telegram.CallbackCreateIssue:
		u.Input = conversation.StartIssue{}
	case data == telegram.CallbackSubmitIssue:
		u.Input = conversation.Submit{}
	case data == telegram.CallbackSkip:
		u.Input = conversation.Skip{}
	case data == telegram.CallbackMyIssues:
		u.Input = conversation.ListIssues{}
	case data == telegram.CallbackMyInfo:
		u.Input = conversation.MyInfo{}
	case data == telegram.CallbackMainMenu:
		u.Input = conversation.Cancel{}
	case strings.HasPrefix(data, telegram.CallbackIssuePrefix):
		u.Input = conversation.StartComment{IssueKey: strings.TrimPrefix(data, telegram.CallbackIssuePrefix)}
	case strings.HasPrefix(data, telegram.CallbackReplyPrefix):
		u.Input = conversation.StartComment{IssueKey: strings.TrimPrefix(data, telegram.CallbackReplyPrefix)}
	default:
		return conversation.Update{}, false
	}
	if sc, ok := u.Input.(conversation.StartComment); ok && sc.IssueKey == "" {
		return conversation.Update{}, false
	}
	return u, true
}
