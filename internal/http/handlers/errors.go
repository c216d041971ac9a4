package handlers

import (
	"errors"

	"github.com/geocoder89/synergysphere/internal/authz"
	"github.com/geocoder89/synergysphere/internal/domain/message"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/domain/task"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// respondDomainError maps the sentinel errors of the domain packages onto the
// HTTP envelope. Anything unrecognised becomes a 500 with fallback as message.
func respondDomainError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		RespondForbidden(ctx, "You do not have permission to perform this action")
	case errors.Is(err, authz.ErrNotMember):
		RespondBadRequest(ctx, "Assignee must be a member of the project", nil)
	case errors.Is(err, project.ErrCannotRemoveCreator):
		RespondBadRequest(ctx, "Cannot remove the project creator", nil)
	case errors.Is(err, project.ErrNotFound):
		RespondNotFound(ctx, "Project not found")
	case errors.Is(err, project.ErrMemberNotFound):
		RespondNotFound(ctx, "User is not a member of this project")
	case errors.Is(err, project.ErrAlreadyMember):
		RespondConflict(ctx, "conflict", "User is already a member of this project")
	case errors.Is(err, task.ErrNotFound):
		RespondNotFound(ctx, "Task not found")
	case errors.Is(err, message.ErrNotFound):
		RespondNotFound(ctx, "Message not found")
	case errors.Is(err, notification.ErrNotFound):
		RespondNotFound(ctx, "Notification not found")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, user.ErrEmailTaken):
		RespondConflict(ctx, "conflict", "User already exists")
	default:
		RespondInternal(ctx, fallback, err)
	}
}
