package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// MessageCursor marks the oldest message of a page; the next page holds
// messages strictly older than it.
type MessageCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func EncodeMessageCursor(createdAt time.Time, id string) (string, error) {
	b, err := json.Marshal(MessageCursor{CreatedAt: createdAt.UTC(), ID: id})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeMessageCursor(cursor string) (MessageCursor, error) {
	if cursor == "" {
		return MessageCursor{}, ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return MessageCursor{}, ErrInvalidCursor
	}

	var c MessageCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return MessageCursor{}, ErrInvalidCursor
	}
	if c.CreatedAt.IsZero() {
		return MessageCursor{}, ErrInvalidCursor
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return MessageCursor{}, ErrInvalidCursor
	}
	return c, nil
}
