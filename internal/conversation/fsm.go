package conversation

import (
	"strings"

	"github.com/set-night/trackerbot/internal/domain"
)

// State is the position of a user in the dialog.
type State int

const (
	StateIdle State = iota
	StateAwaitingContact
	StateAwaitingTitle
	StateAwaitingDescription
	StateAwaitingAttachment
	StateAwaitingComment
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingContact:
		return "awaiting_contact"
	case StateAwaitingTitle:
		return "awaiting_title"
	case StateAwaitingDescription:
		return "awaiting_description"
	case StateAwaitingAttachment:
		return "awaiting_attachment"
	case StateAwaitingComment:
		return "awaiting_comment"
	default:
		return "unknown"
	}
}

// Input is one decoded chat update. The concrete types below are the only
// implementations.
type Input interface {
	isInput()
}

type (
	// Start is the /start command.
	Start struct{}

	// StartIssue begins ticket creation.
	StartIssue struct{}

	// StartComment selects an issue to comment on.
	StartComment struct{ IssueKey string }

	// Text is a plain text message.
	Text struct{ Text string }

	// Skip skips the description step.
	Skip struct{}

	// File is a single photo or document, with its caption.
	File struct {
		File    domain.RemoteFile
		Caption string
	}

	// AlbumFile is one file of a media group.
	AlbumFile struct {
		GroupID string
		File    domain.RemoteFile
		Caption string
	}

	// Submit creates the ticket from the draft.
	Submit struct{}

	// Cancel returns to the main menu.
	Cancel struct{}

	// Contact is a shared phone contact.
	Contact struct {
		UserID    int64
		FirstName string
		LastName  string
		Phone     string
	}

	ListIssues struct{}
	MyInfo     struct{}
)

func (Start) isInput()        {}
func (StartIssue) isInput()   {}
func (StartComment) isInput() {}
func (Text) isInput()         {}
func (Skip) isInput()         {}
func (File) isInput()         {}
func (AlbumFile) isInput()    {}
func (Submit) isInput()       {}
func (Cancel) isInput()       {}
func (Contact) isInput()      {}
func (ListIssues) isInput()   {}
func (MyInfo) isInput()       {}

// Effect is the action the engine performs for a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectGreet
	EffectShowMenu
	EffectAskContact
	EffectRegister
	EffectPromptTitle
	EffectRepromptTitle
	EffectSaveTitle
	EffectSaveDescription
	EffectAskAttachment
	EffectUploadAttachment
	EffectBufferAlbum
	EffectCreateIssue
	EffectPromptComment
	EffectAddComment
	EffectListIssues
	EffectShowInfo
)

// Transition returns the state the user moves to when the effect succeeds.
// The engine may stay in the current state when the effect fails.
func Transition(s State, in Input) (State, Effect) {
	switch in := in.(type) {
	case Start:
		return StateIdle, EffectGreet
	case Cancel:
		return StateIdle, EffectShowMenu
	case Contact:
		return StateIdle, EffectRegister
	case StartIssue:
		return StateAwaitingTitle, EffectPromptTitle
	case StartComment:
		return StateAwaitingComment, EffectPromptComment
	case ListIssues:
		return StateIdle, EffectListIssues
	case MyInfo:
		return StateIdle, EffectShowInfo
	case Submit:
		if s == StateAwaitingAttachment {
			return StateIdle, EffectCreateIssue
		}
		return s, EffectNone
	case Skip:
		if s == StateAwaitingDescription {
			return StateAwaitingAttachment, EffectSaveDescription
		}
		return s, EffectNone
	case Text:
		return textTransition(s, in)
	case File:
		switch s {
		case StateAwaitingAttachment:
			return s, EffectUploadAttachment
		case StateAwaitingComment:
			return StateIdle, EffectAddComment
		}
		return s, EffectNone
	case AlbumFile:
		switch s {
		case StateAwaitingAttachment:
			return s, EffectBufferAlbum
		case StateAwaitingComment:
			return StateIdle, EffectAddComment
		}
		return s, EffectNone
	}
	return s, EffectNone
}

func textTransition(s State, in Text) (State, Effect) {
	switch s {
	case StateAwaitingContact:
		return s, EffectAskContact
	case StateAwaitingTitle:
		if strings.TrimSpace(in.Text) == "" {
			return s, EffectRepromptTitle
		}
		return StateAwaitingDescription, EffectSaveTitle
	case StateAwaitingDescription:
		return StateAwaitingAttachment, EffectSaveDescription
	case StateAwaitingAttachment:
		return s, EffectAskAttachment
	case StateAwaitingComment:
		return StateIdle, EffectAddComment
	default:
		return StateIdle, EffectGreet
	}
}

// guarded inputs require a registered user.
func guarded(in Input) bool {
	switch in.(type) {
	case StartIssue, StartComment, ListIssues, MyInfo, Submit:
		return true
	}
	return false
}
