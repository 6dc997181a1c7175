package domain

// Issue is the subset of a tracker issue record the bot reads.
type Issue struct {
	Key        string
	Summary    string
	Status     Status
	TelegramID string
}

type Status struct {
	Key     string
	Display string
}

// Name returns the most human-readable status label available.
func (s Status) Name() string {
	if s.Display != "" {
		return s.Display
	}
	return s.Key
}

// NewIssue carries everything needed to create a tracker issue.
// Fields holds the default classification fields plus telegramId and attachmentIds.
type NewIssue struct {
	Summary     string
	Description string
	Fields      map[string]any
}

type Comment struct {
	ID     string
	Text   string
	Author string
}

// CommentAttachment is a file linked to a tracker comment.
type CommentAttachment struct {
	URL      string
	Filename string
}
