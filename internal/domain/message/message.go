package message

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/google/uuid"
)

// PreviewLength is the number of runes of a message quoted in notifications.
const PreviewLength = 50

type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ProjectID string    `json:"projectId"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`

	Author *user.User `json:"author,omitempty"`
}

var ErrNotFound = errors.New("message not found")

type CreateRequest struct {
	Content string `json:"content" binding:"required,notblank,max=5000"`
}

func New(projectID, authorID, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   strings.TrimSpace(content),
		ProjectID: projectID,
		AuthorID:  authorID,
		CreatedAt: time.Now().UTC(),
	}
}

// Preview truncates content to PreviewLength runes, appending "..." when cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}

	return string(runes[:PreviewLength]) + "..."
}
