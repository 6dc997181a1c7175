package domain

// TrackerEvent is an inbound tracker webhook, decoded once at the HTTP boundary.
// The concrete types are CommentEvent and StatusEvent.
type TrackerEvent interface {
	// DedupKey identifies the event for duplicate suppression; empty means
	// the event cannot be identified and is never suppressed.
	DedupKey() string
	EventIssue() EventIssue
	isTrackerEvent()
}

// EventIssue is the issue block embedded in every webhook payload.
type EventIssue struct {
	Key        string
	Summary    string
	TelegramID string
}

type CommentEvent struct {
	Event     string
	Issue     EventIssue
	CommentID string
	Text      string
	Author    string
}

func (e CommentEvent) DedupKey() string {
	if e.CommentID == "" {
		return ""
	}
	return "comment:" + e.CommentID
}

func (e CommentEvent) EventIssue() EventIssue { return e.Issue }
func (CommentEvent) isTrackerEvent() {}

type StatusEvent struct {
	Event     string
	Issue     EventIssue
	Status    string
	ChangedBy string
	// ID and ChangedAt identify one transition when the webhook sends them.
	ID        string
	ChangedAt string
}

// DedupKey uses the event id, then the change time. Repeated transitions to
// the same status are distinct events, so the status alone is not a key.
func (e StatusEvent) DedupKey() string {
	switch {
	case e.ID != "":
		return "status:" + e.ID
	case e.ChangedAt != "" && e.Issue.Key != "":
		return "status:" + e.Issue.Key + ":" + e.ChangedAt
	default:
		return ""
	}
}

func (e StatusEvent) EventIssue() EventIssue { return e.Issue }
func (StatusEvent) isTrackerEvent() {}

// RelayResult is the outcome reported back to the webhook caller.
type RelayResult string

const (
	RelayOK      RelayResult = "ok"
	RelayIgnored RelayResult = "ignored"
	RelayError   RelayResult = "error"
)
