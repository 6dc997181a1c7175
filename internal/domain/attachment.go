package domain

import "time"

// AttachmentRef is a file already uploaded to the tracker.
type AttachmentRef struct {
	ID   string
	Name string
	Size int64
}

// RemoteFile is a chat-side file handle that has not been downloaded yet.
// Size is the size declared by the chat backend.
type RemoteFile struct {
	FileID   string
	UniqueID string
	Name     string
	MimeType string
	Size     int64
}

// FileKind decides how a file is delivered to the chat.
type FileKind int

const (
	KindDocument FileKind = iota
	KindImage
)

func (k FileKind) String() string {
	if k == KindImage {
		return "image"
	}
	return "document"
}

// MediaGroup is the consumed content of one album burst.
type MediaGroup struct {
	ID       string
	UserID   int64
	ChatID   int64
	Files    []RemoteFile
	Arrivals []time.Time
}
