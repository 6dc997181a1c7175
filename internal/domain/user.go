package domain

import (
	"strings"
	"time"
)

// User is a registered chat user. Registration requires a shared contact.
type User struct {
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
	Phone      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
