package notify

import (
	"net/url"
	"time"
)

// Kind identifies what a notification asks the recipient to do.
type Kind string

const (
	KindConfirmationRequested  Kind = "confirmation_requested"
	KindPasswordResetRequested Kind = "password_reset_requested"
)

// Message is a single outbound notification.
type Message struct {
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Token     string    `json:"token"`
	Link      string    `json:"link,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Links holds the base URLs the recipient opens to use a token. An empty
// URL leaves Message.Link empty.
type Links struct {
	ConfirmURL string
	ResetURL   string
}

// For returns the link for a message of kind carrying token.
func (l Links) For(kind Kind, token string) string {
	var base string
	switch kind {
	case KindConfirmationRequested:
		base = l.ConfirmURL
	case KindPasswordResetRequested:
		base = l.ResetURL
	}
	if base == "" || token == "" {
		return ""
	}

	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
