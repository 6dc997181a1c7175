package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
	"github.com/set-night/trackerbot/internal/telegram"
)

type Users interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	Register(ctx context.Context, user *domain.User) error
	BindIssue(ctx context.Context, telegramID int64, issueKey string) error
	IssueCount(ctx context.Context, telegramID int64) (int, error)
}

type Tracker interface {
	CreateIssue(ctx context.Context, in domain.NewIssue) (*domain.Issue, error)
	GetIssue(ctx context.Context, key string) (*domain.Issue, error)
	AddComment(ctx context.Context, key, text string, attachmentIDs []string) (*domain.Comment, error)
	ActiveIssues(ctx context.Context, telegramID int64) ([]domain.Issue, error)
}

type Uploader interface {
	Upload(ctx context.Context, f domain.RemoteFile) (domain.AttachmentRef, error)
}

type AlbumBuffer interface {
	Add(groupID string, userID, chatID int64, f domain.RemoteFile)
}

type Messenger interface {
	SendText(ctx context.Context, t telegram.Text) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Limiter interface {
	TryAcquire(userID int64, action string) bool
}

// OpsLog receives business events for the staff chat.
type OpsLog interface {
	LogRegistration(telegramID int64, name, username, phone string)
	LogIssueCreated(telegramID int64, issueKey, summary string, attachments int)
	LogError(err error, context string)
}

// Rate-limited actions.
const (
	ActionSubmitIssue = "submit_issue"
	ActionMyIssues    = "my_issues"
)

// Update is a decoded chat update addressed to the engine.
type Update struct {
	UserID    int64
	ChatID    int64
	FirstName string
	LastName  string
	Username  string
	Input     Input
}

type Deps struct {
	Users    Users
	Tracker  Tracker
	Uploader Uploader
	Albums   AlbumBuffer
	Chat     Messenger
	Limiter  Limiter
	OpsLog   OpsLog
	Sessions *SessionStore
}

type Options struct {
	IssueURL func(key string) string
	// Fields are the default classification fields of every new issue.
	Fields        map[string]any
	MaxUploadSize int64
}

// Engine runs the dialog: it applies Transition and performs the effects.
type Engine struct {
	users    Users
	tracker  Tracker
	uploader Uploader
	albums   AlbumBuffer
	chat     Messenger
	limiter  Limiter
	ops      OpsLog
	sessions *SessionStore

	issueURL func(key string) string
	fields   map[string]any
	maxSize  int64
}

func NewEngine(deps Deps, opts Options) *Engine {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionStore()
	}
	maxSize := opts.MaxUploadSize
	if maxSize <= 0 {
		maxSize = config.MaxUploadSize
	}
	return &Engine{
		users:    deps.Users,
		tracker:  deps.Tracker,
		uploader: deps.Uploader,
		albums:   deps.Albums,
		chat:     deps.Chat,
		limiter:  deps.Limiter,
		ops:      deps.OpsLog,
		sessions: sessions,
		issueURL: opts.IssueURL,
		fields:   opts.Fields,
		maxSize:  maxSize,
	}
}

// DefaultFields builds the classification fields from config.
func DefaultFields(cfg *config.Config) map[string]any {
	fields := make(map[string]any)
	if cfg.TrackerProjectID != "" {
		if n, err := strconv.ParseInt(cfg.TrackerProjectID, 10, 64); err == nil {
			fields["project"] = n
		} else {
			fields["project"] = cfg.TrackerProjectID
		}
	}
	if len(cfg.TrackerTags) > 0 {
		fields["tags"] = cfg.TrackerTags
	}
	return fields
}

// State returns the user's current dialog state.
func (e *Engine) State(userID int64) State {
	return e.sessions.Snapshot(userID).State
}

// Handle processes one update. Updates of one user are handled one at a time.
func (e *Engine) Handle(ctx context.Context, u Update) {
	sess, unlock := e.sessions.Acquire(u.UserID)
	defer unlock()

	var user *domain.User
	if guarded(u.Input) {
		var err error
		user, err = e.users.GetByTelegramID(ctx, u.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			sess.reset()
			e.send(ctx, u.ChatID, msgNotRegistered, false, telegram.ContactKeyboard())
			return
		}
		if err != nil {
			slog.Error("failed to load user", "user_id", u.UserID, "error", err)
			e.send(ctx, u.ChatID, msgTrackerError, false, nil)
			return
		}
	}

	if in, ok := u.Input.(AlbumFile); ok && e.restOfCommentAlbum(ctx, u, sess, in) {
		return
	}

	next, effect := Transition(sess.State, u.Input)
	slog.Debug("conversation transition",
		"user_id", u.UserID, "from", sess.State, "to", next, "effect", int(effect))
	e.apply(ctx, u, user, sess, next, effect)
}

func (e *Engine) apply(ctx context.Context, u Update, user *domain.User, sess *Session, next State, effect Effect) {
	switch effect {
	case EffectNone:
		return

	case EffectGreet:
		e.greet(ctx, u, sess)

	case EffectShowMenu:
		sess.reset()
		e.showMenu(ctx, u, sess)

	case EffectAskContact:
		e.send(ctx, u.ChatID, msgRequestContact, false, telegram.ContactKeyboard())

	case EffectRegister:
		e.register(ctx, u, sess)

	case EffectPromptTitle:
		sess.reset()
		sess.State = next
		e.prompt(ctx, u.ChatID, sess, msgEnterTitle, telegram.CancelKeyboard())

	case EffectRepromptTitle:
		e.send(ctx, u.ChatID, msgTitleEmpty, false, nil)

	case EffectSaveTitle:
		sess.Title = strings.TrimSpace(u.Input.(Text).Text)
		sess.State = next
		e.prompt(ctx, u.ChatID, sess, msgEnterDescription, telegram.DescriptionKeyboard())

	case EffectSaveDescription:
		sess.Description = ""
		if t, ok := u.Input.(Text); ok {
			sess.Description = strings.TrimSpace(t.Text)
		}
		sess.Attachments = nil
		sess.Albums = nil
		sess.State = next
		e.prompt(ctx, u.ChatID, sess, msgAskAttachments, telegram.AttachmentKeyboard())

	case EffectAskAttachment:
		e.prompt(ctx, u.ChatID, sess, msgAskAttachments, telegram.AttachmentKeyboard())

	case EffectUploadAttachment:
		e.uploadAttachment(ctx, u, sess)

	case EffectBufferAlbum:
		in := u.Input.(AlbumFile)
		if sess.Albums == nil {
			sess.Albums = make(map[string]bool)
		}
		sess.Albums[in.GroupID] = true
		e.albums.Add(in.GroupID, u.UserID, u.ChatID, in.File)

	case EffectCreateIssue:
		if !e.limiter.TryAcquire(u.UserID, ActionSubmitIssue) {
			slog.Info("submit throttled", "user_id", u.UserID)
			return
		}
		e.createIssue(ctx, u, user, sess)

	case EffectPromptComment:
		key := u.Input.(StartComment).IssueKey
		sess.reset()
		sess.State = next
		sess.IssueKey = key
		e.prompt(ctx, u.ChatID, sess, msgCommentPrompt, telegram.BackToMenu())

	case EffectAddComment:
		e.addComment(ctx, u, sess)

	case EffectListIssues:
		sess.reset()
		e.listIssues(ctx, u, sess)

	case EffectShowInfo:
		sess.reset()
		e.showInfo(ctx, u, user)
	}
}

func (e *Engine) greet(ctx context.Context, u Update, sess *Session) {
	sess.reset()
	_, err := e.users.GetByTelegramID(ctx, u.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		sess.State = StateAwaitingContact
		e.send(ctx, u.ChatID, msgRequestContact, false, telegram.ContactKeyboard())
		return
	}
	if err != nil {
		slog.Error("failed to load user", "user_id", u.UserID, "error", err)
		e.send(ctx, u.ChatID, msgTrackerError, false, nil)
		return
	}
	e.showMenu(ctx, u, sess)
}

func (e *Engine) showMenu(ctx context.Context, u Update, sess *Session) {
	e.prompt(ctx, u.ChatID, sess, msgChooseAction, telegram.MainMenu())
	e.send(ctx, u.ChatID, msgChooseAction, false, telegram.MainReplyKeyboard())
}

func (e *Engine) register(ctx context.Context, u Update, sess *Session) {
	c := u.Input.(Contact)
	if c.UserID != 0 && c.UserID != u.UserID {
		e.send(ctx, u.ChatID, msgForeignContact, false, telegram.ContactKeyboard())
		return
	}
	firstName := c.FirstName
	if firstName == "" {
		firstName = u.FirstName
	}
	lastName := c.LastName
	if lastName == "" {
		lastName = u.LastName
	}
	user := &domain.User{
		TelegramID: u.UserID,
		FirstName:  firstName,
		LastName:   lastName,
		Username:   u.Username,
		Phone:      c.Phone,
	}
	if err := e.users.Register(ctx, user); err != nil {
		slog.Error("failed to register user", "user_id", u.UserID, "error", err)
		e.send(ctx, u.ChatID, msgTrackerError, false, nil)
		return
	}
	sess.reset()
	if e.ops != nil {
		e.ops.LogRegistration(u.UserID, user.FullName(), user.Username, user.Phone)
	}
	e.send(ctx, u.ChatID, msgRegistrationSuccess, false, telegram.MainReplyKeyboard())
	e.prompt(ctx, u.ChatID, sess, msgChooseAction, telegram.MainMenu())
}

func (e *Engine) uploadAttachment(ctx context.Context, u Update, sess *Session) {
	in := u.Input.(File)
	ref, err := e.uploader.Upload(ctx, in.File)
	if err != nil {
		e.reportUploadError(ctx, u.ChatID, in.File, err)
		return
	}
	sess.Attachments = append(sess.Attachments, ref)
	slog.Info("attachment added", "user_id", u.UserID, "file_id", ref.ID, "count", len(sess.Attachments))
	e.prompt(ctx, u.ChatID, sess, fmt.Sprintf(msgFilesUploaded, len(sess.Attachments)), telegram.AttachmentKeyboard())
}

func (e *Engine) reportUploadError(ctx context.Context, chatID int64, f domain.RemoteFile, err error) {
	if errors.Is(err, domain.ErrFileTooLarge) {
		slog.Info("file rejected", "name", f.Name, "size", f.Size, "error", err)
		e.send(ctx, chatID, fmt.Sprintf(msgFileTooLarge, e.maxSize>>20), false, nil)
		return
	}
	slog.Error("attachment upload failed", "name", f.Name, "error", err)
	e.send(ctx, chatID, msgFileUploadFailed, false, nil)
}

// AlbumUploaded adds a flushed album to the draft it was sent for. Results
// for a draft that no longer exists are dropped.
func (e *Engine) AlbumUploaded(ctx context.Context, group domain.MediaGroup, refs []domain.AttachmentRef) {
	sess, unlock := e.sessions.Acquire(group.UserID)
	defer unlock()

	if sess.State != StateAwaitingAttachment || !sess.Albums[group.ID] {
		slog.Info("album result discarded", "group_id", group.ID, "user_id", group.UserID, "state", sess.State)
		return
	}
	delete(sess.Albums, group.ID)
	sess.Attachments = append(sess.Attachments, refs...)
	e.prompt(ctx, group.ChatID, sess, fmt.Sprintf(msgFilesUploaded, len(sess.Attachments)), telegram.AttachmentKeyboard())
}

func (e *Engine) AlbumFailed(ctx context.Context, group domain.MediaGroup, err error) {
	sess, unlock := e.sessions.Acquire(group.UserID)
	defer unlock()

	if sess.Albums != nil {
		delete(sess.Albums, group.ID)
	}
	if errors.Is(err, domain.ErrFileTooLarge) {
		e.send(ctx, group.ChatID, fmt.Sprintf(msgAlbumTooLarge, e.maxSize>>20), false, nil)
		return
	}
	e.send(ctx, group.ChatID, msgAlbumFailed, false, nil)
}

func (e *Engine) createIssue(ctx context.Context, u Update, user *domain.User, sess *Session) {
	ids := make([]string, 0, len(sess.Attachments))
	for _, a := range sess.Attachments {
		ids = append(ids, a.ID)
	}

	fields := make(map[string]any, len(e.fields)+2)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields["telegramId"] = strconv.FormatInt(u.UserID, 10)
	if len(ids) > 0 {
		fields["attachmentIds"] = ids
	}

	title := sess.Title
	issue, err := e.tracker.CreateIssue(ctx, domain.NewIssue{
		Summary:     title,
		Description: withContact(sess.Description, user, u),
		Fields:      fields,
	})
	sess.reset()
	if err != nil {
		slog.Error("failed to create issue", "user_id", u.UserID, "error", err)
		if e.ops != nil {
			e.ops.LogError(err, "create issue")
		}
		e.send(ctx, u.ChatID, msgIssueCreationError, false, telegram.MainReplyKeyboard())
		return
	}

	if err := e.users.BindIssue(ctx, u.UserID, issue.Key); err != nil {
		slog.Error("failed to save issue ownership", "user_id", u.UserID, "issue_key", issue.Key, "error", err)
	}
	if e.ops != nil {
		e.ops.LogIssueCreated(u.UserID, issue.Key, title, len(ids))
	}

	url := e.issueURL(issue.Key)
	text := fmt.Sprintf(msgIssueCreated, html.EscapeString(url), html.EscapeString(issue.Key), html.EscapeString(title))
	e.prompt(ctx, u.ChatID, sess, text, telegram.IssueLinkKeyboard(url))
}

// addComment posts a comment. On failure the user stays in AwaitingComment
// so the message can be sent again.
func (e *Engine) addComment(ctx context.Context, u Update, sess *Session) {
	key := sess.IssueKey
	if key == "" {
		sess.reset()
		e.send(ctx, u.ChatID, msgNoIssueSelected, false, nil)
		return
	}

	var (
		text string
		file *domain.RemoteFile
	)
	switch in := u.Input.(type) {
	case Text:
		text = in.Text
	case File:
		text, file = in.Caption, &in.File
	case AlbumFile:
		text, file = in.Caption, &in.File
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = msgAttachmentStub
	}

	var ids []string
	if file != nil {
		ref, err := e.uploader.Upload(ctx, *file)
		if err != nil {
			e.reportUploadError(ctx, u.ChatID, *file, err)
			return
		}
		ids = append(ids, ref.ID)
	}

	user, err := e.users.GetByTelegramID(ctx, u.UserID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		slog.Warn("failed to load user for comment", "user_id", u.UserID, "error", err)
	}
	if _, err := e.tracker.AddComment(ctx, key, withContact(text, user, u), ids); err != nil {
		slog.Error("failed to add comment", "user_id", u.UserID, "issue_key", key, "error", err)
		e.send(ctx, u.ChatID, msgCommentFailed, false, nil)
		return
	}

	summary := key
	if album, ok := u.Input.(AlbumFile); ok {
		sess.commentAlbum, sess.commentAlbumNotified = album.GroupID, false
	}
	if issue, err := e.tracker.GetIssue(ctx, key); err != nil {
		slog.Warn("failed to fetch issue summary", "issue_key", key, "error", err)
	} else if issue.Summary != "" {
		summary = issue.Summary
	}
	sess.reset()
	slog.Info("comment added", "user_id", u.UserID, "issue_key", key, "attachments", len(ids))
	text = fmt.Sprintf(msgCommentAdded, html.EscapeString(e.issueURL(key)), html.EscapeString(summary))
	e.send(ctx, u.ChatID, text, true, telegram.MainReplyKeyboard())
}

// restOfCommentAlbum swallows the remaining files of an album whose first
// file already went into a comment, telling the user once.
func (e *Engine) restOfCommentAlbum(ctx context.Context, u Update, sess *Session, in AlbumFile) bool {
	if in.GroupID == "" || in.GroupID != sess.commentAlbum || sess.State == StateAwaitingComment {
		return false
	}
	if !sess.commentAlbumNotified {
		sess.commentAlbumNotified = true
		e.send(ctx, u.ChatID, msgCommentOneFile, false, nil)
	}
	slog.Info("extra album file ignored for comment", "user_id", u.UserID, "group_id", in.GroupID)
	return true
}

func (e *Engine) listIssues(ctx context.Context, u Update, sess *Session) {
	if !e.limiter.TryAcquire(u.UserID, ActionMyIssues) {
		e.send(ctx, u.ChatID, msgTooFast, false, nil)
		return
	}
	issues, err := e.tracker.ActiveIssues(ctx, u.UserID)
	if err != nil {
		slog.Error("failed to list issues", "user_id", u.UserID, "error", err)
		e.send(ctx, u.ChatID, msgTrackerError, false, nil)
		return
	}
	if len(issues) > config.IssuesListLimit {
		issues = issues[:config.IssuesListLimit]
	}
	text := msgIssuesList
	if len(issues) == 0 {
		text = msgNoIssues
	}
	e.prompt(ctx, u.ChatID, sess, text, telegram.IssuesKeyboard(issues))
}

func (e *Engine) showInfo(ctx context.Context, u Update, user *domain.User) {
	count, err := e.users.IssueCount(ctx, u.UserID)
	if err != nil {
		slog.Warn("failed to count issues", "user_id", u.UserID, "error", err)
	}
	phone := user.Phone
	if phone == "" {
		phone = unknownPhone
	}
	handle := "Нет"
	if user.Username != "" {
		handle = "@" + user.Username
	}
	text := fmt.Sprintf(msgUserInfo,
		html.EscapeString(user.FullName()), html.EscapeString(phone), html.EscapeString(handle), count)
	e.send(ctx, u.ChatID, text, true, nil)
}

// withContact appends the contact trailer that identifies the requester in
// the tracker.
func withContact(body string, user *domain.User, u Update) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	phone := unknownPhone
	username := u.Username
	if user != nil {
		if n := user.FullName(); n != "" {
			name = n
		}
		if user.Phone != "" {
			phone = user.Phone
		}
		if user.Username != "" {
			username = user.Username
		}
	}
	handle := unknownUsername
	if username != "" {
		handle = "@" + username
	}
	trailer := fmt.Sprintf("---\n👤 %s\n📞 %s\n🔗 %s", name, phone, handle)
	body = strings.TrimSpace(body)
	if body == "" {
		return trailer
	}
	return body + "\n\n" + trailer
}

// prompt sends a message with an inline keyboard and removes the previous one.
func (e *Engine) prompt(ctx context.Context, chatID int64, sess *Session, text string, markup *models.InlineKeyboardMarkup) {
	if sess.LastPrompt != 0 {
		if err := e.chat.DeleteMessage(ctx, chatID, sess.LastPrompt); err != nil {
			slog.Debug("failed to delete previous prompt", "chat_id", chatID, "error", err)
		}
		sess.LastPrompt = 0
	}
	id, err := e.chat.SendText(ctx, telegram.Text{ChatID: chatID, Body: text, HTML: true, Markup: markup})
	if err != nil {
		slog.Error("failed to send prompt", "chat_id", chatID, "error", err)
		return
	}
	sess.LastPrompt = id
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, asHTML bool, markup models.ReplyMarkup) {
	t := telegram.Text{ChatID: chatID, Body: text, HTML: asHTML}
	if markup != nil {
		t.Markup = markup
	}
	if _, err := e.chat.SendText(ctx, t); err != nil {
		slog.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}
