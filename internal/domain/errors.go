package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrIssueNotFound   = errors.New("issue not found")
	ErrFileTooLarge    = errors.New("file too large")
	ErrImageRejected   = errors.New("chat backend rejected image")
	ErrMessageNotFound = errors.New("message not found")
	ErrUnauthorized    = errors.New("invalid bearer token")
)

// UploadError is returned when the tracker refuses an attachment upload.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: status %d: %s", e.Status, e.Body)
}

// TrackerError is returned for any other non-success tracker response.
type TrackerError struct {
	Op     string
	Status int
	Body   string
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("tracker %s: status %d: %s", e.Op, e.Status, e.Body)
}

// FileTooLargeError reports the offending file; it matches ErrFileTooLarge.
type FileTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %q is %d bytes, limit %d", e.Name, e.Size, e.Limit)
}

func (e *FileTooLargeError) Is(target error) bool {
	return target == ErrFileTooLarge
}
