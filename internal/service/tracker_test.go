package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/trackerbot/internal/domain"
)

func newTestTracker(t *testing.T, h http.HandlerFunc) *TrackerService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTrackerService(TrackerOptions{
		BaseURL:    srv.URL + "/v2/",
		Token:      "tok",
		OrgID:      "org-1",
		Queue:      "SUP",
		HTTPClient: srv.Client(),
	})
}

func TestTrackerCreateIssue(t *testing.T) {
	var got map[string]any
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/issues", r.URL.Path)
		assert.Equal(t, "OAuth tok", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("X-Cloud-Org-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"key":"SUP-12","summary":"Printer broken","status":{"key":"open","display":"Открыт"}}`)
	})

	issue, err := tr.CreateIssue(context.Background(), domain.NewIssue{
		Summary:     "Printer broken",
		Description: "body",
		Fields: map[string]any{
			"telegramId":    "42",
			"attachmentIds": []string{"101", "102"},
			"tags":          []string{"Запрос"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "SUP-12", issue.Key)
	assert.Equal(t, "Открыт", issue.Status.Name())
	assert.Equal(t, "SUP", got["queue"])
	assert.Equal(t, "Printer broken", got["summary"])
	assert.Equal(t, "body", got["description"])
	assert.Equal(t, "42", got["telegramId"])
	assert.Equal(t, []any{float64(101), float64(102)}, got["attachmentIds"])
	assert.Equal(t, []any{"Запрос"}, got["tags"])
}

func TestTrackerCreateIssueFailure(t *testing.T) {
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"errors":{"summary":"required"}}`)
	})

	_, err := tr.CreateIssue(context.Background(), domain.NewIssue{Summary: ""})
	var te *domain.TrackerError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnprocessableEntity, te.Status)
	assert.Contains(t, te.Body, "summary")
}

func TestTrackerGetIssueNotFound(t *testing.T) {
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/issues/SUP-404", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := tr.GetIssue(context.Background(), "SUP-404")
	assert.ErrorIs(t, err, domain.ErrIssueNotFound)
}

func TestTrackerGetIssueNumericTelegramID(t *testing.T) {
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"key":"SUP-1","summary":"s","telegramId":123456789}`)
	})

	issue, err := tr.GetIssue(context.Background(), "SUP-1")
	require.NoError(t, err)
	assert.Equal(t, "123456789", issue.TelegramID)
}

func TestTrackerActiveIssuesFiltersClosed(t *testing.T) {
	var filter map[string]map[string]any
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/issues/_search", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("perPage"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&filter))
		io.WriteString(w, `[
			{"key":"SUP-1","summary":"open one","status":{"key":"open","display":"Открыт"}},
			{"key":"SUP-2","summary":"closed","status":{"key":"closed","display":"Закрыт"}},
			{"key":"SUP-3","summary":"custom","status":{"key":"custom7","display":"Отменена"}},
			{"key":"SUP-4","summary":"in work","status":{"key":"inProgress","display":"В работе"}}
		]`)
	})

	issues, err := tr.ActiveIssues(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "SUP", filter["filter"]["queue"])
	assert.Equal(t, "42", filter["filter"]["telegramId"])
	keys := make([]string, 0, len(issues))
	for _, is := range issues {
		keys = append(keys, is.Key)
	}
	assert.Equal(t, []string{"SUP-1", "SUP-4"}, keys)
}

func TestIsClosed(t *testing.T) {
	assert.True(t, IsClosed(domain.Status{Key: "Resolved"}))
	assert.True(t, IsClosed(domain.Status{Key: "x", Display: "Выполнено"}))
	assert.False(t, IsClosed(domain.Status{Key: "open", Display: "Открыт"}))
	assert.False(t, IsClosed(domain.Status{}))
}

func TestTrackerAddComment(t *testing.T) {
	var got map[string]any
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/issues/SUP-7/comments", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":555,"text":"hi","createdBy":{"display":"Bot"}}`)
	})

	c, err := tr.AddComment(context.Background(), "SUP-7", "hi", []string{"9"})
	require.NoError(t, err)
	assert.Equal(t, "555", c.ID)
	assert.Equal(t, "hi", got["text"])
	assert.Equal(t, []any{float64(9)}, got["attachmentIds"])
}

func TestTrackerCommentDetails(t *testing.T) {
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/issues/SUP-7/comments/77", r.URL.Path)
		io.WriteString(w, `{
			"id": 77,
			"createdBy": {"display": "Иван Петров"},
			"attachments": [
				{"id": 1, "fileName": "a.pdf", "urls": {"download": "http://x/a"}},
				{"id": 2, "name": "b.png", "content": "http://x/b"},
				{"id": 3, "display": "c.txt"}
			]
		}`)
	})

	author, err := tr.GetCommentAuthor(context.Background(), "SUP-7", "77")
	require.NoError(t, err)
	assert.Equal(t, "Иван Петров", author)

	atts, err := tr.GetCommentAttachments(context.Background(), "SUP-7", "77")
	require.NoError(t, err)
	assert.Equal(t, []domain.CommentAttachment{
		{URL: "http://x/a", Filename: "a.pdf"},
		{URL: "http://x/b", Filename: "b.png"},
		{URL: "", Filename: "c.txt"},
	}, atts)
}

func TestTrackerUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uuid_report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))

	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/attachments/", r.URL.Path)
		assert.Equal(t, "OAuth tok", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4 test", string(data))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 31337, "name": "report.pdf"}`)
	})

	id, err := tr.UploadFile(context.Background(), path, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "31337", id)
}

func TestTrackerUploadFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))

	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, "too big")
	})

	_, err := tr.UploadFile(context.Background(), path, "a.bin")
	var ue *domain.UploadError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusRequestEntityTooLarge, ue.Status)
	assert.Equal(t, "too big", ue.Body)
}

func TestAuthHeadersWithoutOrg(t *testing.T) {
	tr := NewTrackerService(TrackerOptions{Token: " t ", AuthScheme: "Bearer"})
	h := tr.AuthHeaders()
	assert.Equal(t, "Bearer t", h.Get("Authorization"))
	assert.Empty(t, h.Get("X-Cloud-Org-ID"))
}

func TestTrackerGetIssueCached(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, `{"key":"SUP-1","summary":"s","telegramId":"42"}`)
	}))
	defer srv.Close()

	now := time.Unix(1_700_000_000, 0)
	cache := NewIssueCache(time.Minute)
	cache.now = func() time.Time { return now }
	tr := NewTrackerService(TrackerOptions{BaseURL: srv.URL, Token: "t", HTTPClient: srv.Client(), Issues: cache})

	for i := 0; i < 3; i++ {
		is, err := tr.GetIssue(context.Background(), "SUP-1")
		require.NoError(t, err)
		assert.Equal(t, "42", is.TelegramID)
	}
	assert.Equal(t, 1, hits)

	now = now.Add(2 * time.Minute)
	_, err := tr.GetIssue(context.Background(), "SUP-1")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	now = now.Add(2 * time.Minute)
	cache.Prune()
	assert.Zero(t, cache.Len())
}

func TestTrackerErrorFromHTMLGateway(t *testing.T) {
	tr := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html><head><title>502 Bad Gateway</title></head><body><center><h1>502 Bad Gateway</h1></center><hr><center>nginx</center></body></html>")
	})

	_, err := tr.GetIssue(context.Background(), "SUP-1")
	var te *domain.TrackerError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadGateway, te.Status)
	assert.Equal(t, "502 Bad Gateway", te.Body)
}

func TestErrorBodyKeepsJSON(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	assert.Equal(t, `{"errors":{"a<b":"x"}}`, errorBody(h, []byte(`{"errors":{"a<b":"x"}}`)))

	h.Set("Content-Type", "text/html")
	assert.Equal(t, "Service is down", errorBody(h, []byte("<body>\n  <p>Service is\n down</p>\n</body>")))
}
