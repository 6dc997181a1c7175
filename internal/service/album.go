package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
)

// AlbumSink receives the outcome of a flushed album.
type AlbumSink interface {
	AlbumUploaded(ctx context.Context, group domain.MediaGroup, refs []domain.AttachmentRef)
	AlbumFailed(ctx context.Context, group domain.MediaGroup, err error)
}

type AlbumUploader interface {
	CheckSize(f domain.RemoteFile) error
	Upload(ctx context.Context, f domain.RemoteFile) (domain.AttachmentRef, error)
}

type burst struct {
	group domain.MediaGroup
	timer *time.Timer
}

// AlbumAggregator collects files that arrive as one album and uploads them
// together once the album has been quiet for a while.
type AlbumAggregator struct {
	uploader    AlbumUploader
	quiet       time.Duration
	timeout     time.Duration
	concurrency int
	now         func() time.Time

	mu     sync.Mutex
	sink   AlbumSink
	bursts map[string]*burst
}

func NewAlbumAggregator(uploader AlbumUploader, quiet time.Duration) *AlbumAggregator {
	if quiet <= 0 {
		quiet = config.AlbumQuietPeriod
	}
	return &AlbumAggregator{
		uploader:    uploader,
		quiet:       quiet,
		timeout:     config.AlbumFlushTimeout,
		concurrency: config.TransferConcurrency,
		now:         time.Now,
		bursts:      make(map[string]*burst),
	}
}

func (a *AlbumAggregator) SetSink(sink AlbumSink) {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

// Add buffers one album file. The first file of a burst schedules the flush.
func (a *AlbumAggregator) Add(groupID string, userID, chatID int64, f domain.RemoteFile) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.bursts[groupID]
	if !ok {
		b = &burst{group: domain.MediaGroup{ID: groupID, UserID: userID, ChatID: chatID}}
		a.bursts[groupID] = b
		b.timer = time.AfterFunc(a.quiet, func() { a.Flush(groupID) })
		slog.Debug("album burst started", "group_id", groupID, "user_id", userID)
	}
	b.group.Files = append(b.group.Files, f)
	b.group.Arrivals = append(b.group.Arrivals, a.now())
}

// Pending returns the number of bursts waiting to be flushed.
func (a *AlbumAggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bursts)
}

func (a *AlbumAggregator) pop(groupID string) (domain.MediaGroup, AlbumSink, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.bursts[groupID]
	if !ok {
		return domain.MediaGroup{}, nil, false
	}
	delete(a.bursts, groupID)
	b.timer.Stop()
	return b.group, a.sink, true
}

// Flush consumes the burst and uploads it. A second flush of the same burst
// is a no-op.
func (a *AlbumAggregator) Flush(groupID string) {
	group, sink, ok := a.pop(groupID)
	if !ok || len(group.Files) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	refs, err := a.uploadAll(ctx, group)
	if sink == nil {
		slog.Warn("album flushed without sink", "group_id", groupID)
		return
	}
	if err != nil {
		slog.Warn("album upload failed", "group_id", groupID, "user_id", group.UserID, "files", len(group.Files), "error", err)
		sink.AlbumFailed(ctx, group, err)
		return
	}
	slog.Info("album uploaded", "group_id", groupID, "user_id", group.UserID, "files", len(refs))
	sink.AlbumUploaded(ctx, group, refs)
}

// uploadAll is all-or-nothing: one oversized file rejects the album before
// any upload, and one failed upload fails the whole album.
func (a *AlbumAggregator) uploadAll(ctx context.Context, group domain.MediaGroup) ([]domain.AttachmentRef, error) {
	for _, f := range group.Files {
		if err := a.uploader.CheckSize(f); err != nil {
			return nil, err
		}
	}

	refs := make([]domain.AttachmentRef, len(group.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, f := range group.Files {
		i, f := i, f
		g.Go(func() error {
			ref, err := a.uploader.Upload(gctx, f)
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// Stop cancels every pending flush and drops the buffered files.
func (a *AlbumAggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, b := range a.bursts {
		b.timer.Stop()
		delete(a.bursts, id)
	}
}
