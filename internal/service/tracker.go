package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
)

const maxErrorBody = 64 << 10

// TrackerService is a client for the Yandex Tracker REST API.
type TrackerService struct {
	baseURL    string
	authHeader string
	orgID      string
	queue      string
	httpClient *http.Client
	issues     *IssueCache
}

type TrackerOptions struct {
	BaseURL    string
	Token      string
	AuthScheme string
	OrgID      string
	Queue      string
	HTTPClient *http.Client
	// Issues caches GetIssue results when set.
	Issues     *IssueCache
}

// NewHTTPClient returns a client whose connections to one host are pooled
// and bounded by maxConns. Every call shares the same total timeout.
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if maxConns > 0 {
		transport.MaxConnsPerHost = maxConns
		transport.MaxIdleConnsPerHost = maxConns
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func NewTrackerService(opts TrackerOptions) *TrackerService {
	scheme := opts.AuthScheme
	if scheme == "" {
		scheme = "OAuth"
	}
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(60*time.Second, 20)
	}
	return &TrackerService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		authHeader: scheme + " " + strings.TrimSpace(opts.Token),
		orgID:      strings.TrimSpace(opts.OrgID),
		queue:      opts.Queue,
		httpClient: client,
		issues:     opts.Issues,
	}
}

// HTTPClient exposes the pooled client so file transfers reuse its connections.
func (s *TrackerService) HTTPClient() *http.Client {
	return s.httpClient
}

// AuthHeaders returns the tracker credentials as request headers.
func (s *TrackerService) AuthHeaders() http.Header {
	h := make(http.Header)
	h.Set("Authorization", s.authHeader)
	if s.orgID != "" {
		h.Set("X-Cloud-Org-ID", s.orgID)
	}
	return h
}

func (s *TrackerService) authorize(req *http.Request) {
	for k, v := range s.AuthHeaders() {
		req.Header[k] = v
	}
}

type trackerStatus struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

type trackerIssue struct {
	Key        string            `json:"key"`
	Summary    string            `json:"summary"`
	Status     trackerStatus     `json:"status"`
	TelegramID domain.FlexString `json:"telegramId"`
}

func (i trackerIssue) toDomain() *domain.Issue {
	return &domain.Issue{
		Key:        i.Key,
		Summary:    i.Summary,
		Status:     domain.Status{Key: i.Status.Key, Display: i.Status.Display},
		TelegramID: i.TelegramID.String(),
	}
}

type trackerComment struct {
	ID        domain.FlexString `json:"id"`
	Text      string            `json:"text"`
	CreatedBy struct {
		Display string `json:"display"`
	} `json:"createdBy"`
	Attachments []trackerAttachment `json:"attachments"`
}

type trackerAttachment struct {
	ID       domain.FlexString `json:"id"`
	FileName string            `json:"fileName"`
	Name     string            `json:"name"`
	Display  string            `json:"display"`
	Content  string            `json:"content"`
	URLs     struct {
		Download string `json:"download"`
	} `json:"urls"`
}

func (a trackerAttachment) filename() string {
	for _, n := range []string{a.FileName, a.Name, a.Display} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (a trackerAttachment) downloadURL() string {
	if a.URLs.Download != "" {
		return a.URLs.Download
	}
	return a.Content
}

func (s *TrackerService) CreateIssue(ctx context.Context, in domain.NewIssue) (*domain.Issue, error) {
	body := map[string]any{
		"queue":       s.queue,
		"summary":     in.Summary,
		"description": in.Description,
	}
	for k, v := range in.Fields {
		body[k] = v
	}
	if ids, ok := body["attachmentIds"].([]string); ok {
		body["attachmentIds"] = numericIDs(ids)
	}

	var issue trackerIssue
	if err := s.doJSON(ctx, "create issue", http.MethodPost, "/issues", body, http.StatusCreated, &issue); err != nil {
		return nil, err
	}
	if issue.Key == "" {
		return nil, fmt.Errorf("create issue: response has no key")
	}
	slog.Info("tracker issue created", "issue_key", issue.Key)
	return issue.toDomain(), nil
}

func (s *TrackerService) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
	if s.issues != nil {
		if is, ok := s.issues.Get(key); ok {
			return is, nil
		}
	}
	var issue trackerIssue
	err := s.doJSON(ctx, "get issue", http.MethodGet, "/issues/"+url.PathEscape(key), nil, http.StatusOK, &issue)
	if err != nil {
		var te *domain.TrackerError
		if errors.As(err, &te) && te.Status == http.StatusNotFound {
			return nil, domain.ErrIssueNotFound
		}
		return nil, err
	}
	out := issue.toDomain()
	if s.issues != nil {
		s.issues.Set(out)
	}
	return out, nil
}

// SearchByTelegramID returns every issue of the queue bound to the chat user.
func (s *TrackerService) SearchByTelegramID(ctx context.Context, telegramID int64) ([]domain.Issue, error) {
	body := map[string]any{
		"filter": map[string]any{
			"queue":      s.queue,
			"telegramId": strconv.FormatInt(telegramID, 10),
		},
	}
	var raw []trackerIssue
	if err := s.doJSON(ctx, "search issues", http.MethodPost, "/issues/_search?perPage=100", body, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	issues := make([]domain.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, *r.toDomain())
	}
	return issues, nil
}

// ActiveIssues is SearchByTelegramID without closed, cancelled or done issues.
func (s *TrackerService) ActiveIssues(ctx context.Context, telegramID int64) ([]domain.Issue, error) {
	all, err := s.SearchByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, is := range all {
		if !IsClosed(is.Status) {
			active = append(active, is)
		}
	}
	return active, nil
}

// IsClosed matches a status by key or by a localized name fragment.
func IsClosed(st domain.Status) bool {
	key := strings.ToLower(st.Key)
	for _, k := range config.ClosedStatusKeys {
		if key == k {
			return true
		}
	}
	name := strings.ToLower(st.Display)
	for _, n := range config.ClosedStatusNames {
		if name != "" && strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func (s *TrackerService) AddComment(ctx context.Context, key, text string, attachmentIDs []string) (*domain.Comment, error) {
	body := map[string]any{"text": text}
	if len(attachmentIDs) > 0 {
		body["attachmentIds"] = numericIDs(attachmentIDs)
	}
	var c trackerComment
	path := "/issues/" + url.PathEscape(key) + "/comments"
	if err := s.doJSON(ctx, "add comment", http.MethodPost, path, body, http.StatusCreated, &c); err != nil {
		return nil, err
	}
	return &domain.Comment{ID: c.ID.String(), Text: c.Text, Author: c.CreatedBy.Display}, nil
}

func (s *TrackerService) getComment(ctx context.Context, key, commentID string) (*trackerComment, error) {
	var c trackerComment
	path := "/issues/" + url.PathEscape(key) + "/comments/" + url.PathEscape(commentID)
	if err := s.doJSON(ctx, "get comment", http.MethodGet, path, nil, http.StatusOK, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *TrackerService) GetCommentAuthor(ctx context.Context, key, commentID string) (string, error) {
	c, err := s.getComment(ctx, key, commentID)
	if err != nil {
		return "", err
	}
	return c.CreatedBy.Display, nil
}

// GetCommentAttachments lists the comment's files. Entries without a URL or a
// name are returned as-is; the caller decides what to skip.
func (s *TrackerService) GetCommentAttachments(ctx context.Context, key, commentID string) ([]domain.CommentAttachment, error) {
	c, err := s.getComment(ctx, key, commentID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CommentAttachment, 0, len(c.Attachments))
	for _, a := range c.Attachments {
		out = append(out, domain.CommentAttachment{URL: a.downloadURL(), Filename: a.filename()})
	}
	return out, nil
}

// UploadFile streams a local file to the tracker and returns the remote file id.
func (s *TrackerService) UploadFile(ctx context.Context, path, originalName string) (string, error) {
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(originalName)))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/attachments/", pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("create upload request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", &domain.UploadError{Status: resp.StatusCode, Body: errorBody(resp.Header, body)}
	}

	var out struct {
		ID domain.FlexString `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if out.ID == "" {
		return "", &domain.UploadError{Status: resp.StatusCode, Body: string(body)}
	}
	slog.Info("file uploaded to tracker", "name", originalName, "file_id", out.ID.String())
	return out.ID.String(), nil
}

func (s *TrackerService) doJSON(ctx context.Context, op, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	s.authorize(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.TrackerError{Op: op, Status: resp.StatusCode, Body: errorBody(resp.Header, raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parse response: %w", op, err)
	}
	return nil
}

// errorBody returns a failed response body for logging. HTML error pages
// from the gateway are reduced to their title or visible text.
func errorBody(h http.Header, raw []byte) string {
	if !strings.HasPrefix(h.Get("Content-Type"), "text/html") {
		return string(raw)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

// numericIDs sends digit-only ids as numbers, which is what the tracker expects.
func numericIDs(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, id)
	}
	return out
}
