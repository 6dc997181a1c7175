package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
	"github.com/set-night/trackerbot/internal/service"
	"github.com/set-night/trackerbot/internal/telegram"
)

type fakeUsers struct {
	mu       sync.Mutex
	users    map[int64]*domain.User
	bound    []string
	count    int
	failLoad error
}

func newFakeUsers(users ...*domain.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]*domain.User)}
	for _, u := range users {
		f.users[u.TelegramID] = u
	}
	return f
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad != nil {
		return nil, f.failLoad
	}
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) Register(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.TelegramID] = u
	return nil
}

func (f *fakeUsers) BindIssue(_ context.Context, _ int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = append(f.bound, key)
	return nil
}

func (f *fakeUsers) IssueCount(context.Context, int64) (int, error) {
	return f.count, nil
}

type commentCall struct {
	key  string
	text string
	ids  []string
}

type fakeTracker struct {
	created    []domain.NewIssue
	comments   []commentCall
	createErr  error
	commentErr error
	issues     []domain.Issue
}

func (f *fakeTracker) CreateIssue(_ context.Context, in domain.NewIssue) (*domain.Issue, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.Issue{Key: "SUP-1", Summary: in.Summary}, nil
}

func (f *fakeTracker) GetIssue(_ context.Context, key string) (*domain.Issue, error) {
	return &domain.Issue{Key: key, Summary: "Printer broken"}, nil
}

func (f *fakeTracker) AddComment(_ context.Context, key, text string, ids []string) (*domain.Comment, error) {
	f.comments = append(f.comments, commentCall{key: key, text: text, ids: ids})
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	return &domain.Comment{ID: "1", Text: text}, nil
}

func (f *fakeTracker) ActiveIssues(context.Context, int64) ([]domain.Issue, error) {
	return f.issues, nil
}

type fakeUploader struct {
	calls []domain.RemoteFile
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, file domain.RemoteFile) (domain.AttachmentRef, error) {
	f.calls = append(f.calls, file)
	if f.err != nil {
		return domain.AttachmentRef{}, f.err
	}
	return domain.AttachmentRef{ID: fmt.Sprintf("%d", 100+len(f.calls)), Name: file.Name, Size: file.Size}, nil
}

type fakeAlbums struct {
	groups []string
}

func (f *fakeAlbums) Add(groupID string, _, _ int64, _ domain.RemoteFile) {
	f.groups = append(f.groups, groupID)
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   []telegram.Text
	deleted []int
	nextID  int
}

func (f *fakeMessenger) SendText(_ context.Context, t telegram.Text) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, t)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ int64, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMessenger) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1].Body
}

func (f *fakeMessenger) contains(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.texts {
		if strings.Contains(t.Body, sub) {
			return true
		}
	}
	return false
}

type allowAll struct{}

func (allowAll) TryAcquire(int64, string) bool { return true }

type opsRecorder struct {
	registrations []int64
	issues        []string
	errors        []error
}

func (o *opsRecorder) LogRegistration(id int64, _, _, _ string) {
	o.registrations = append(o.registrations, id)
}

func (o *opsRecorder) LogIssueCreated(_ int64, key, _ string, _ int) {
	o.issues = append(o.issues, key)
}

func (o *opsRecorder) LogError(err error, _ string) {
	o.errors = append(o.errors, err)
}

type fixture struct {
	engine   *Engine
	users    *fakeUsers
	tracker  *fakeTracker
	uploader *fakeUploader
	albums   *fakeAlbums
	chat     *fakeMessenger
	ops      *opsRecorder
}

const (
	userID = int64(42)
	chatID = int64(42)
)

var registered = &domain.User{
	TelegramID: userID,
	FirstName:  "Ivan",
	LastName:   "Petrov",
	Username:   "ivanp",
	Phone:      "+79990001122",
}

func newFixture(t *testing.T, users ...*domain.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    newFakeUsers(users...),
		tracker:  &fakeTracker{},
		uploader: &fakeUploader{},
		albums:   &fakeAlbums{},
		chat:     &fakeMessenger{},
		ops:      &opsRecorder{},
	}
	f.engine = NewEngine(Deps{
		Users:    f.users,
		Tracker:  f.tracker,
		Uploader: f.uploader,
		Albums:   f.albums,
		Chat:     f.chat,
		Limiter:  allowAll{},
		OpsLog:   f.ops,
	}, Options{
		IssueURL: func(key string) string { return "https://tracker.example/" + key },
		Fields:   map[string]any{"project": int64(12), "tags": []string{"Запрос"}},
	})
	return f
}

func (f *fixture) send(in Input) {
	f.engine.Handle(context.Background(), Update{
		UserID:    userID,
		ChatID:    chatID,
		FirstName: "Ivan",
		LastName:  "Petrov",
		Username:  "ivanp",
		Input:     in,
	})
}

func TestCreateIssueWithPhoto(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartIssue{})
	assert.Equal(t, StateAwaitingTitle, f.engine.State(userID))

	f.send(Text{Text: "Printer broken"})
	assert.Equal(t, StateAwaitingDescription, f.engine.State(userID))

	f.send(Skip{})
	assert.Equal(t, StateAwaitingAttachment, f.engine.State(userID))

	f.send(File{File: domain.RemoteFile{FileID: "ph1", Name: "photo.jpg", Size: 2 << 20}})
	assert.Equal(t, StateAwaitingAttachment, f.engine.State(userID))
	require.Len(t, f.uploader.calls, 1)
	assert.True(t, f.chat.contains("Загружено файлов: 1"))

	f.send(Submit{})
	assert.Equal(t, StateIdle, f.engine.State(userID))

	require.Len(t, f.tracker.created, 1)
	issue := f.tracker.created[0]
	assert.Equal(t, "Printer broken", issue.Summary)
	assert.Equal(t, "---\n👤 Ivan Petrov\n📞 +79990001122\n🔗 @ivanp", issue.Description)
	assert.Equal(t, "42", issue.Fields["telegramId"])
	assert.Equal(t, []string{"101"}, issue.Fields["attachmentIds"])
	assert.Equal(t, int64(12), issue.Fields["project"])
	assert.Equal(t, []string{"Запрос"}, issue.Fields["tags"])

	assert.Equal(t, []string{"SUP-1"}, f.users.bound)
	assert.Equal(t, []string{"SUP-1"}, f.ops.issues)
	assert.Contains(t, f.chat.last(), "SUP-1")
	assert.Contains(t, f.chat.last(), "https://tracker.example/SUP-1")
}

func TestCreateIssueWithDescription(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartIssue{})
	f.send(Text{Text: "  VPN down  "})
	f.send(Text{Text: "Since morning"})
	f.send(Submit{})

	require.Len(t, f.tracker.created, 1)
	issue := f.tracker.created[0]
	assert.Equal(t, "VPN down", issue.Summary)
	assert.True(t, strings.HasPrefix(issue.Description, "Since morning\n\n---\n👤 Ivan Petrov"))
	_, hasIDs := issue.Fields["attachmentIds"]
	assert.False(t, hasIDs)
}

func TestOversizedFileRejectedBeforeUpload(t *testing.T) {
	f := newFixture(t, registered)
	trackerUploads := &countingFileUploader{}
	f.engine.uploader = service.NewAttachmentPipeline(service.AttachmentOptions{
		Locator:  &countingLocator{},
		Uploader: trackerUploads,
		TempDir:  t.TempDir(),
		MaxSize:  config.MaxUploadSize,
	})

	f.send(StartIssue{})
	f.send(Text{Text: "Video"})
	f.send(Skip{})
	f.send(File{File: domain.RemoteFile{FileID: "v1", Name: "clip.mp4", Size: 60 << 20}})

	assert.Equal(t, StateAwaitingAttachment, f.engine.State(userID))
	assert.Zero(t, trackerUploads.calls)
	assert.True(t, f.chat.contains("Файл слишком большой"))
	assert.True(t, f.chat.contains("50 МБ"))
	assert.Empty(t, f.engine.sessions.Snapshot(userID).Attachments)
}

type countingLocator struct{ calls int }

func (l *countingLocator) FileURL(context.Context, string) (string, error) {
	l.calls++
	return "", errors.New("unexpected lookup")
}

type countingFileUploader struct{ calls int }

func (u *countingFileUploader) UploadFile(context.Context, string, string) (string, error) {
	u.calls++
	return "", errors.New("unexpected upload")
}

func TestUploadFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, registered)
	f.uploader.err = &domain.UploadError{Status: 500}

	f.send(StartIssue{})
	f.send(Text{Text: "t"})
	f.send(Skip{})
	f.send(File{File: domain.RemoteFile{FileID: "x", Name: "a.pdf", Size: 10}})

	assert.Equal(t, StateAwaitingAttachment, f.engine.State(userID))
	assert.True(t, f.chat.contains("Не удалось загрузить файл"))
	assert.Equal(t, "t", f.engine.sessions.Snapshot(userID).Title)
}

func TestUnregisteredUserIsGuarded(t *testing.T) {
	f := newFixture(t)

	f.send(StartIssue{})

	assert.Equal(t, StateIdle, f.engine.State(userID))
	assert.Equal(t, msgNotRegistered, f.chat.last())
	assert.Empty(t, f.tracker.created)

	f.send(Submit{})
	assert.Empty(t, f.tracker.created)
}

func TestStartAsksUnknownUserForContact(t *testing.T) {
	f := newFixture(t)

	f.send(Start{})
	assert.Equal(t, StateAwaitingContact, f.engine.State(userID))
	assert.Equal(t, msgRequestContact, f.chat.last())

	f.send(Text{Text: "hello"})
	assert.Equal(t, StateAwaitingContact, f.engine.State(userID))

	f.send(Contact{UserID: 999, Phone: "+7000"})
	assert.Equal(t, msgForeignContact, f.chat.last())
	_, err := f.users.GetByTelegramID(context.Background(), userID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	f.send(Contact{UserID: userID, FirstName: "Ivan", Phone: "+79990001122"})
	assert.Equal(t, StateIdle, f.engine.State(userID))
	u, err := f.users.GetByTelegramID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "+79990001122", u.Phone)
	assert.Equal(t, "Petrov", u.LastName)
	assert.Equal(t, []int64{userID}, f.ops.registrations)
	assert.True(t, f.chat.contains(msgRegistrationSuccess))
}

func TestStartShowsMenuToKnownUser(t *testing.T) {
	f := newFixture(t, registered)

	f.send(Start{})

	assert.Equal(t, StateIdle, f.engine.State(userID))
	assert.Equal(t, msgChooseAction, f.chat.last())
}

func TestAlbumResultsJoinDraft(t *testing.T) {
	f := newFixture(t, registered)
	f.send(StartIssue{})
	f.send(Text{Text: "Photos"})
	f.send(Skip{})

	for i := 0; i < 3; i++ {
		f.send(AlbumFile{GroupID: "g1", File: domain.RemoteFile{FileID: fmt.Sprintf("p%d", i), Size: 1 << 20}})
	}
	assert.Equal(t, []string{"g1", "g1", "g1"}, f.albums.groups)

	group := domain.MediaGroup{ID: "g1", UserID: userID, ChatID: chatID}
	f.engine.AlbumUploaded(context.Background(), group, []domain.AttachmentRef{{ID: "7"}, {ID: "8"}, {ID: "9"}})
	assert.True(t, f.chat.contains("Загружено файлов: 3"))

	f.send(Submit{})
	require.Len(t, f.tracker.created, 1)
	assert.Equal(t, []string{"7", "8", "9"}, f.tracker.created[0].Fields["attachmentIds"])
}

func TestAlbumResultForStaleDraftDropped(t *testing.T) {
	f := newFixture(t, registered)
	f.send(StartIssue{})
	f.send(Text{Text: "Photos"})
	f.send(Skip{})
	f.send(AlbumFile{GroupID: "g1", File: domain.RemoteFile{FileID: "p"}})
	f.send(Cancel{})

	f.engine.AlbumUploaded(context.Background(), domain.MediaGroup{ID: "g1", UserID: userID, ChatID: chatID},
		[]domain.AttachmentRef{{ID: "7"}})

	assert.Empty(t, f.engine.sessions.Snapshot(userID).Attachments)
}

func TestAlbumFailureReported(t *testing.T) {
	f := newFixture(t, registered)
	group := domain.MediaGroup{ID: "g1", UserID: userID, ChatID: chatID}

	f.engine.AlbumFailed(context.Background(), group, &domain.FileTooLargeError{Name: "big", Size: 60 << 20, Limit: 50 << 20})
	assert.True(t, f.chat.contains("В альбоме есть файл больше 50 МБ"))

	f.engine.AlbumFailed(context.Background(), group, errors.New("boom"))
	assert.Equal(t, msgAlbumFailed, f.chat.last())
}

func TestCreateIssueFailureResetsDraft(t *testing.T) {
	f := newFixture(t, registered)
	f.tracker.createErr = &domain.TrackerError{Op: "create issue", Status: 500}

	f.send(StartIssue{})
	f.send(Text{Text: "t"})
	f.send(Skip{})
	f.send(Submit{})

	assert.Equal(t, StateIdle, f.engine.State(userID))
	assert.Equal(t, msgIssueCreationError, f.chat.last())
	assert.Len(t, f.ops.errors, 1)
	assert.Empty(t, f.users.bound)
}

func TestSubmitThrottled(t *testing.T) {
	f := newFixture(t, registered)
	f.engine.limiter = service.NewRateLimiter(config.ActionCooldown)

	f.send(StartIssue{})
	f.send(Text{Text: "first"})
	f.send(Skip{})
	f.send(Submit{})
	f.send(StartIssue{})
	f.send(Text{Text: "second"})
	f.send(Skip{})
	f.send(Submit{})

	require.Len(t, f.tracker.created, 1)
	assert.Equal(t, StateAwaitingAttachment, f.engine.State(userID))
}

func TestCommentFlow(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartComment{IssueKey: "SUP-9"})
	assert.Equal(t, StateAwaitingComment, f.engine.State(userID))

	f.send(Text{Text: "Still broken"})

	require.Len(t, f.tracker.comments, 1)
	c := f.tracker.comments[0]
	assert.Equal(t, "SUP-9", c.key)
	assert.True(t, strings.HasPrefix(c.text, "Still broken\n\n---\n👤 Ivan Petrov"))
	assert.Empty(t, c.ids)
	assert.Equal(t, StateIdle, f.engine.State(userID))
	assert.True(t, f.chat.contains("Комментарий добавлен"))
}

func TestCommentWithFileOnly(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartComment{IssueKey: "SUP-9"})
	f.send(File{File: domain.RemoteFile{FileID: "d", Name: "log.txt", Size: 10}})

	require.Len(t, f.tracker.comments, 1)
	c := f.tracker.comments[0]
	assert.True(t, strings.HasPrefix(c.text, msgAttachmentStub))
	assert.Equal(t, []string{"101"}, c.ids)
}

func TestCommentFromAlbumPostsFirstFileOnly(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartComment{IssueKey: "SUP-9"})
	for i := 0; i < 3; i++ {
		f.send(AlbumFile{GroupID: "g7", Caption: "see photos", File: domain.RemoteFile{FileID: fmt.Sprintf("p%d", i), Size: 10}})
	}

	require.Len(t, f.tracker.comments, 1)
	assert.Equal(t, []string{"101"}, f.tracker.comments[0].ids)
	assert.True(t, strings.HasPrefix(f.tracker.comments[0].text, "see photos"))
	assert.Len(t, f.uploader.calls, 1)
	assert.Empty(t, f.albums.groups)
	assert.Equal(t, StateIdle, f.engine.State(userID))

	notices := 0
	for _, tx := range f.chat.texts {
		if tx.Body == msgCommentOneFile {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
}

func TestCommentFailureKeepsState(t *testing.T) {
	f := newFixture(t, registered)
	f.tracker.commentErr = errors.New("tracker down")

	f.send(StartComment{IssueKey: "SUP-9"})
	f.send(Text{Text: "hello"})

	assert.Equal(t, StateAwaitingComment, f.engine.State(userID))
	assert.Equal(t, msgCommentFailed, f.chat.last())
}

func TestListIssuesEmpty(t *testing.T) {
	f := newFixture(t, registered)

	f.send(ListIssues{})

	assert.Equal(t, msgNoIssues, f.chat.last())
}

func TestShowInfo(t *testing.T) {
	f := newFixture(t, registered)
	f.users.count = 3

	f.send(MyInfo{})

	last := f.chat.last()
	assert.Contains(t, last, "Ivan Petrov")
	assert.Contains(t, last, "@ivanp")
	assert.Contains(t, last, "Задач создано: 3")
}

func TestPromptReplacesPreviousKeyboard(t *testing.T) {
	f := newFixture(t, registered)

	f.send(StartIssue{})
	f.send(Text{Text: "t"})

	assert.Equal(t, []int{1}, f.chat.deleted)
}

func TestWithContactUnknownFields(t *testing.T) {
	got := withContact("", nil, Update{FirstName: "Anna"})
	assert.Equal(t, "---\n👤 Anna\n📞 неизвестно\n🔗 без username", got)
}

func TestDefaultFields(t *testing.T) {
	fields := DefaultFields(&config.Config{TrackerProjectID: "12", TrackerTags: []string{"Запрос"}})
	assert.Equal(t, int64(12), fields["project"])
	assert.Equal(t, []string{"Запрос"}, fields["tags"])

	fields = DefaultFields(&config.Config{TrackerProjectID: "abc"})
	assert.Equal(t, "abc", fields["project"])
	_, ok := fields["tags"]
	assert.False(t, ok)
}
