package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/synergysphere/internal/domain/message"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/notifications"
	"github.com/geocoder89/synergysphere/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
)

type MessageStore interface {
	Create(ctx context.Context, m message.Message) (message.Message, error)
	ListByProject(ctx context.Context, projectID string, limit int, before *utils.MessageCursor) ([]message.Message, bool, error)
}

type MemberIDLister interface {
	ListUserIDs(ctx context.Context, projectID string) ([]string, error)
}

type MessagesHandler struct {
	messages MessageStore
	members  MemberIDLister
	notifier notifications.Notifier
}

func NewMessagesHandler(messages MessageStore, members MemberIDLister, notifier notifications.Notifier) *MessagesHandler {
	return &MessagesHandler{messages: messages, members: members, notifier: notifier}
}

type messagesPage struct {
	Items      []message.Message `json:"items"`
	NextCursor *string           `json:"nextCursor"`
	HasMore    bool              `json:"hasMore"`
}

// Create posts to the project's thread and notifies every other member.
func (h *MessagesHandler) Create(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)
	userID, _ := middlewares.UserIDFromContext(ctx)

	var req message.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	m, err := h.messages.Create(cctx, message.New(p.ID, userID, req.Content))
	if err != nil {
		RespondInternal(ctx, "Could not post message", err)
		return
	}

	memberIDs, err := h.members.ListUserIDs(cctx, p.ID)
	if err != nil {
		_ = ctx.Error(err)
	}

	preview := message.Preview(m.Content)
	events := make([]notification.CreateRequest, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == userID {
			continue
		}
		events = append(events, notification.MessagePosted(id, p.ID, preview))
	}

	_ = h.notifier.Notify(cctx, events...)

	RespondOK(ctx, http.StatusCreated, "Message posted successfully", m)
}

// List returns the newest page of the thread in chronological order;
// nextCursor walks back to older messages.
func (h *MessagesHandler) List(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	limit, ok := positiveQueryInt(ctx, "limit", defaultMessagesLimit, maxMessagesLimit)
	if !ok {
		return
	}

	var before *utils.MessageCursor
	if v := ctx.Query("cursor"); v != "" {
		c, err := utils.DecodeMessageCursor(v)
		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}
		before = &c
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	items, hasMore, err := h.messages.ListByProject(cctx, p.ID, limit, before)
	if err != nil {
		RespondInternal(ctx, "Could not list messages", err)
		return
	}

	page := messagesPage{Items: items, HasMore: hasMore}

	if hasMore && len(items) > 0 {
		oldest := items[0]
		next, err := utils.EncodeMessageCursor(oldest.CreatedAt, oldest.ID)
		if err != nil {
			RespondInternal(ctx, "Could not list messages", err)
			return
		}
		page.NextCursor = &next
	}

	RespondOK(ctx, http.StatusOK, "Messages retrieved", page)
}
