package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
	"github.com/set-night/trackerbot/internal/telegram"
)

// RelayTracker is the tracker surface the relay reads from.
type RelayTracker interface {
	GetIssue(ctx context.Context, key string) (*domain.Issue, error)
	GetCommentAuthor(ctx context.Context, key, commentID string) (string, error)
	GetCommentAttachments(ctx context.Context, key, commentID string) ([]domain.CommentAttachment, error)
	AuthHeaders() http.Header
}

// RelayDownloader fetches tracker attachments to local disk.
type RelayDownloader interface {
	Download(ctx context.Context, url, name string, header http.Header) (*TempFile, error)
}

// RelayChat is the chat surface notifications are delivered through.
type RelayChat interface {
	SendText(ctx context.Context, t telegram.Text) (int, error)
	SendDocument(ctx context.Context, chatID int64, f telegram.File) error
	SendPhoto(ctx context.Context, chatID int64, f telegram.File) error
	SendMediaGroup(ctx context.Context, chatID int64, files []telegram.File) error
}

// WebhookRelay turns tracker webhook events into chat notifications.
type WebhookRelay struct {
	tracker     RelayTracker
	downloader  RelayDownloader
	chat        RelayChat
	dedup       DedupStore
	issueURL    func(key string) string
	concurrency int
}

type RelayOptions struct {
	Tracker    RelayTracker
	Downloader RelayDownloader
	Chat       RelayChat
	Dedup      DedupStore
	IssueURL   func(key string) string
}

func NewWebhookRelay(opts RelayOptions) *WebhookRelay {
	return &WebhookRelay{
		tracker:     opts.Tracker,
		downloader:  opts.Downloader,
		chat:        opts.Chat,
		dedup:       opts.Dedup,
		issueURL:    opts.IssueURL,
		concurrency: config.TransferConcurrency,
	}
}

const commentCreatedEvent = "commentCreated"

// Handle dispatches a decoded event to its handler.
func (r *WebhookRelay) Handle(ctx context.Context, ev domain.TrackerEvent) domain.RelayResult {
	switch e := ev.(type) {
	case domain.CommentEvent:
		return r.HandleComment(ctx, e)
	case domain.StatusEvent:
		return r.HandleStatus(ctx, e)
	default:
		slog.Warn("unknown tracker event", "type", fmt.Sprintf("%T", ev))
		return domain.RelayIgnored
	}
}

func (r *WebhookRelay) HandleComment(ctx context.Context, ev domain.CommentEvent) domain.RelayResult {
	if ev.Event != "" && ev.Event != commentCreatedEvent {
		return domain.RelayIgnored
	}
	if r.duplicate(ctx, ev) {
		return domain.RelayIgnored
	}

	chatID, ok := r.destination(ctx, ev.Issue)
	if !ok {
		return domain.RelayIgnored
	}
	log := slog.With("issue_key", ev.Issue.Key, "comment_id", ev.CommentID, "chat_id", chatID)

	author := ev.Author
	if author == "" && ev.CommentID != "" {
		a, err := r.tracker.GetCommentAuthor(ctx, ev.Issue.Key, ev.CommentID)
		if err != nil {
			log.Warn("failed to fetch comment author", "error", err)
		}
		author = a
	}

	var files []*deliveryFile
	if ev.CommentID != "" {
		atts, err := r.tracker.GetCommentAttachments(ctx, ev.Issue.Key, ev.CommentID)
		if err != nil {
			log.Error("failed to fetch comment attachments", "error", err)
		}
		files = r.downloadAll(ctx, log, atts)
	}

	var docs, images []*deliveryFile
	for _, f := range files {
		if Classify(f.tmp.Name, f.tmp.Size) == domain.KindImage {
			images = append(images, f)
		} else {
			docs = append(docs, f)
		}
	}

	r.sendDocuments(ctx, log, chatID, docs)
	r.sendImages(ctx, log, chatID, images)

	text := CommentNotification(r.issueURL(ev.Issue.Key), ev.Issue.Summary, ev.Text, author)
	if _, err := r.chat.SendText(ctx, telegram.Text{
		ChatID: chatID,
		Body:   text,
		HTML:   true,
		Markup: telegram.ReplyButton(ev.Issue.Key),
	}); err != nil {
		log.Error("failed to send comment notification", "error", err)
	} else {
		log.Info("comment relayed", "documents", len(docs), "images", len(images))
	}
	return domain.RelayOK
}

func (r *WebhookRelay) HandleStatus(ctx context.Context, ev domain.StatusEvent) domain.RelayResult {
	if r.duplicate(ctx, ev) {
		return domain.RelayIgnored
	}
	chatID, ok := r.destination(ctx, ev.Issue)
	if !ok {
		return domain.RelayIgnored
	}

	text := StatusNotification(r.issueURL(ev.Issue.Key), ev.Issue.Summary, ev.Status, ev.ChangedBy)
	if _, err := r.chat.SendText(ctx, telegram.Text{
		ChatID: chatID,
		Body:   text,
		HTML:   true,
		Markup: telegram.ReplyButton(ev.Issue.Key),
	}); err != nil {
		slog.Error("failed to send status notification", "issue_key", ev.Issue.Key, "chat_id", chatID, "error", err)
	} else {
		slog.Info("status relayed", "issue_key", ev.Issue.Key, "status", ev.Status, "chat_id", chatID)
	}
	return domain.RelayOK
}

// duplicate claims the event's dedup key. A store failure lets the event through.
func (r *WebhookRelay) duplicate(ctx context.Context, ev domain.TrackerEvent) bool {
	key := ev.DedupKey()
	if key == "" || r.dedup == nil {
		return false
	}
	seen, err := r.dedup.Seen(ctx, key)
	if err != nil {
		slog.Error("dedup check failed", "key", key, "error", err)
		return false
	}
	if seen {
		slog.Info("duplicate webhook ignored", "key", key)
	}
	return seen
}

// destination prefers the telegramId carried by the event, then the issue record.
func (r *WebhookRelay) destination(ctx context.Context, is domain.EventIssue) (int64, bool) {
	raw := strings.TrimSpace(is.TelegramID)
	if raw == "" && is.Key != "" {
		issue, err := r.tracker.GetIssue(ctx, is.Key)
		if err != nil {
			slog.Warn("failed to fetch issue for destination", "issue_key", is.Key, "error", err)
		} else {
			raw = strings.TrimSpace(issue.TelegramID)
		}
	}
	if raw == "" {
		slog.Warn("no telegramId for issue", "issue_key", is.Key)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid telegramId", "issue_key", is.Key, "telegram_id", raw)
		return 0, false
	}
	return id, true
}

type deliveryFile struct {
	name string
	tmp  *TempFile
}

func (f *deliveryFile) open() (telegram.File, func(), error) {
	rc, err := f.tmp.Reader()
	if err != nil {
		return telegram.File{}, nil, err
	}
	return telegram.File{Name: f.name, Data: rc}, func() { rc.Close() }, nil
}

// downloadAll fetches attachments concurrently and keeps their order. Failed
// or incomplete attachments are skipped.
func (r *WebhookRelay) downloadAll(ctx context.Context, log *slog.Logger, atts []domain.CommentAttachment) []*deliveryFile {
	header := r.tracker.AuthHeaders()
	results := make([]*deliveryFile, len(atts))
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, a := range atts {
		if a.URL == "" || a.Filename == "" {
			log.Warn("skipping incomplete attachment", "url", a.URL, "filename", a.Filename)
			continue
		}
		i, a := i, a
		g.Go(func() error {
			tmp, err := r.downloader.Download(ctx, a.URL, a.Filename, header)
			if err != nil {
				log.Error("failed to download attachment", "filename", a.Filename, "error", err)
				return nil
			}
			results[i] = &deliveryFile{name: tmp.Name, tmp: tmp}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*deliveryFile, 0, len(results))
	for _, f := range results {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// sendDocuments sends one file per message and removes each file right after.
func (r *WebhookRelay) sendDocuments(ctx context.Context, log *slog.Logger, chatID int64, docs []*deliveryFile) {
	for _, d := range docs {
		r.sendAsDocument(ctx, log, chatID, d)
		d.tmp.Close()
	}
}

func (r *WebhookRelay) sendAsDocument(ctx context.Context, log *slog.Logger, chatID int64, d *deliveryFile) {
	f, done, err := d.open()
	if err != nil {
		log.Error("failed to open attachment", "filename", d.name, "error", err)
		return
	}
	defer done()
	if err := r.chat.SendDocument(ctx, chatID, f); err != nil {
		log.Error("failed to send document", "filename", d.name, "error", err)
	}
}

// sendImages sends images in batches of at most ten. A batch the chat backend
// rejects as an image is resent file by file as documents.
func (r *WebhookRelay) sendImages(ctx context.Context, log *slog.Logger, chatID int64, images []*deliveryFile) {
	for start := 0; start < len(images); start += config.MaxMediaGroupSize {
		end := min(start+config.MaxMediaGroupSize, len(images))
		batch := images[start:end]

		err := r.sendImageBatch(ctx, chatID, batch)
		if errors.Is(err, domain.ErrImageRejected) {
			log.Warn("images rejected, resending as documents", "count", len(batch), "error", err)
			for _, im := range batch {
				r.sendAsDocument(ctx, log, chatID, im)
			}
		} else if err != nil {
			log.Error("failed to send images", "count", len(batch), "error", err)
		}
		for _, im := range batch {
			im.tmp.Close()
		}
	}
}

func (r *WebhookRelay) sendImageBatch(ctx context.Context, chatID int64, batch []*deliveryFile) error {
	files := make([]telegram.File, 0, len(batch))
	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	for _, im := range batch {
		f, done, err := im.open()
		if err != nil {
			return fmt.Errorf("open %s: %w", im.name, err)
		}
		closers = append(closers, done)
		files = append(files, f)
	}
	if len(files) == 1 {
		return r.chat.SendPhoto(ctx, chatID, files[0])
	}
	return r.chat.SendMediaGroup(ctx, chatID, files)
}

// maxQuoteLen keeps the notification under the message limit after markup.
const maxQuoteLen = 3500

func CommentNotification(issueURL, summary, text, author string) string {
	if summary == "" {
		summary = "Нет темы"
	}
	if author == "" {
		author = "неизвестно"
	}
	body := telegram.Truncate(CleanCommentText(text), maxQuoteLen)
	return fmt.Sprintf(
		"💬 Добавлен комментарий - <a href=\"%s\">%s</a>\n\n<blockquote>%s</blockquote>\n\n<b>👤 Автор комментария:</b> %s",
		html.EscapeString(issueURL), html.EscapeString(summary), html.EscapeString(body), html.EscapeString(author),
	)
}

func StatusNotification(issueURL, summary, status, changedBy string) string {
	if summary == "" {
		summary = "Нет темы"
	}
	if changedBy == "" {
		changedBy = "неизвестно"
	}
	return fmt.Sprintf(
		"🔄 Статус задачи - <a href=\"%s\">%s</a>\n\n<b>Новый статус:</b> %s\n<b>Кто изменил:</b> %s",
		html.EscapeString(issueURL), html.EscapeString(summary), html.EscapeString(status), html.EscapeString(changedBy),
	)
}
