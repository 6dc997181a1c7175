package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
)

// FileLocator resolves a chat file handle to a download URL.
type FileLocator interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// FileUploader stores a local file in the tracker and returns its id.
type FileUploader interface {
	UploadFile(ctx context.Context, path, originalName string) (string, error)
}

// AttachmentPipeline moves files between the chat and the tracker through
// uniquely named temp files.
type AttachmentPipeline struct {
	locator  FileLocator
	uploader FileUploader
	client   *http.Client
	tempDir  string
	maxSize  int64
}

type AttachmentOptions struct {
	Locator    FileLocator
	Uploader   FileUploader
	HTTPClient *http.Client
	TempDir    string
	MaxSize    int64
}

func NewAttachmentPipeline(opts AttachmentOptions) *AttachmentPipeline {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	dir := opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = config.MaxUploadSize
	}
	return &AttachmentPipeline{
		locator:  opts.Locator,
		uploader: opts.Uploader,
		client:   client,
		tempDir:  dir,
		maxSize:  maxSize,
	}
}

// MaxSize is the upload ceiling in bytes.
func (p *AttachmentPipeline) MaxSize() int64 {
	return p.maxSize
}

// CheckSize rejects a file whose declared size exceeds the ceiling.
func (p *AttachmentPipeline) CheckSize(f domain.RemoteFile) error {
	if f.Size > p.maxSize {
		return &domain.FileTooLargeError{Name: f.Name, Size: f.Size, Limit: p.maxSize}
	}
	return nil
}

// Upload moves one chat file into the tracker. Oversized files are rejected
// before any network call.
func (p *AttachmentPipeline) Upload(ctx context.Context, f domain.RemoteFile) (domain.AttachmentRef, error) {
	if err := p.CheckSize(f); err != nil {
		return domain.AttachmentRef{}, err
	}

	link, err := p.locator.FileURL(ctx, f.FileID)
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("resolve file %s: %w", f.FileID, err)
	}

	tmp, err := p.Download(ctx, link, f.Name, nil)
	if err != nil {
		return domain.AttachmentRef{}, err
	}
	defer tmp.Close()

	id, err := p.uploader.UploadFile(ctx, tmp.Path, tmp.Name)
	if err != nil {
		return domain.AttachmentRef{}, err
	}
	return domain.AttachmentRef{ID: id, Name: f.Name, Size: tmp.Size}, nil
}

// Download fetches url into a fresh temp file. Extra headers are added to
// the request, which is how tracker credentials reach attachment URLs.
func (p *AttachmentPipeline) Download(ctx context.Context, url, name string, header http.Header) (*TempFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", name, resp.StatusCode)
	}

	tmp, err := p.createTemp(name)
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(tmp.file, io.LimitReader(resp.Body, p.maxSize+1))
	if err == nil && n > p.maxSize {
		err = &domain.FileTooLargeError{Name: name, Size: n, Limit: p.maxSize}
	}
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.file.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync %s: %w", name, err)
	}
	tmp.Size = n
	return tmp, nil
}

func (p *AttachmentPipeline) createTemp(name string) (*TempFile, error) {
	safe := SanitizeFilename(name)
	path := filepath.Join(p.tempDir, uuid.NewString()+"_"+safe)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &TempFile{Path: path, Name: safe, file: f}, nil
}

// TempFile is a downloaded file on local disk. Close removes it.
type TempFile struct {
	Path string
	Name string
	Size int64

	file *os.File
	once sync.Once
}

// Reader reopens the file from the start.
func (t *TempFile) Reader() (io.ReadCloser, error) {
	return os.Open(t.Path)
}

func (t *TempFile) Close() error {
	var err error
	t.once.Do(func() {
		if t.file != nil {
			t.file.Close()
		}
		if rmErr := os.Remove(t.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove temp file", "path", t.Path, "error", rmErr)
			err = rmErr
		}
	})
	return err
}

// Classify decides whether a file goes to the chat as an image or a document.
// Large photos are sent as documents because the chat backend rejects them.
func Classify(name string, size int64) domain.FileKind {
	if size >= config.PhotoSizeLimit {
		return domain.KindDocument
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range config.ImageExtensions {
		if ext == e {
			return domain.KindImage
		}
	}
	return domain.KindDocument
}

const maxFilenameLen = 128

// SanitizeFilename reduces an untrusted name to a safe base name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return -1
		case unicode.IsControl(r):
			return -1
		case r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(strings.TrimLeft(name, "."))
	if name == "" {
		return "file"
	}
	if r := []rune(name); len(r) > maxFilenameLen {
		ext := []rune(filepath.Ext(name))
		if len(ext) >= maxFilenameLen {
			ext = nil
		}
		name = string(r[:maxFilenameLen-len(ext)]) + string(ext)
	}
	return name
}
