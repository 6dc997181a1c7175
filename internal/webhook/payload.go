package webhook

import (
	"bytes"
	"encoding/json"

	"github.com/set-night/trackerbot/internal/domain"
)

type issuePayload struct {
	Key        string            `json:"key"`
	Summary    string            `json:"summary"`
	TelegramID domain.FlexString `json:"telegramId"`
}

func (p issuePayload) toDomain() domain.EventIssue {
	return domain.EventIssue{Key: p.Key, Summary: p.Summary, TelegramID: p.TelegramID.String()}
}

// actor is a tracker user reference: either a plain string or an object.
type actor struct {
	Display string
}

func (a *actor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &a.Display)
	}
	var obj struct {
		Display string            `json:"display"`
		Login   string            `json:"login"`
		ID      domain.FlexString `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	a.Display = firstNonEmpty(obj.Display, obj.Login, obj.ID.String())
	return nil
}

// statusRef prefers the status name, then its display label, then its key.
type statusRef struct {
	Name string
}

func (s *statusRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &s.Name)
	}
	var obj struct {
		Name    string `json:"name"`
		Display string `json:"display"`
		Key     string `json:"key"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	s.Name = firstNonEmpty(obj.Name, obj.Display, obj.Key)
	return nil
}

type commentPayload struct {
	Event   string       `json:"event"`
	Issue   issuePayload `json:"issue"`
	Comment struct {
		ID        domain.FlexString `json:"id"`
		Text      string            `json:"text"`
		CreatedBy actor             `json:"createdBy"`
	} `json:"comment"`
}

func (p commentPayload) toEvent() domain.CommentEvent {
	return domain.CommentEvent{
		Event:     p.Event,
		Issue:     p.Issue.toDomain(),
		CommentID: p.Comment.ID.String(),
		Text:      p.Comment.Text,
		Author:    p.Comment.CreatedBy.Display,
	}
}

type statusPayload struct {
	ID        domain.FlexString `json:"id"`
	Event     string            `json:"event"`
	Issue     issuePayload      `json:"issue"`
	Status    statusRef         `json:"status"`
	ChangedBy actor             `json:"changedBy"`
	ChangedAt string            `json:"changedAt"`
	UpdatedAt string            `json:"updatedAt"`
}

func (p statusPayload) toEvent() domain.StatusEvent {
	return domain.StatusEvent{
		Event:     p.Event,
		Issue:     p.Issue.toDomain(),
		Status:    p.Status.Name,
		ChangedBy: p.ChangedBy.Display,
		ID:        p.ID.String(),
		ChangedAt: firstNonEmpty(p.ChangedAt, p.UpdatedAt),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
