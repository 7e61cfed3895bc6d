package api

type UserStatus struct {
	UserID   string `json:"user_id"`
	LastSeen int64  `json:"last_seen,omitempty"` // unix seconds
}

func (u UserStatus) Validate() error {
	if u.UserID == "" {
		return ErrMalformed
	}
	return nil
}

type Typing struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

func (t Typing) Validate() error {
	if t.ChatID == "" || t.UserID == "" {
		return ErrMalformed
	}
	return nil
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	From       string      `json:"from"`
	Body       string      `json:"body,omitempty"`
	SentAt     int64       `json:"sent_at,omitempty"` // unix millis
	Attachment *Attachment `json:"attachment,omitempty"`
}

func (m Message) Validate() error {
	if m.ID == "" || m.ChatID == "" {
		return ErrMalformed
	}
	return nil
}

// SendMessage is the outbound counterpart of Message.
type SendMessage struct {
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`
	Body   string `json:"body"`
}

type Ping struct {
	At int64 `json:"at"` // unix millis
}

type Pong = Ping
