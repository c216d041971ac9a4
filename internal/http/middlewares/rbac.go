package middlewares

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/synergysphere/internal/authz"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/gin-gonic/gin"
)

type ProjectAuthorizer interface {
	Authorize(ctx context.Context, userID, projectID string, action authz.Action) (project.Project, project.Membership, error)
}

// RequireProjectAccess guards routes carrying a project id in :id. On
// success the loaded project and the caller's membership are stored on the
// gin context for the handler.
func RequireProjectAccess(guard ProjectAuthorizer, action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserIDFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 3*time.Second)
		defer cancel()

		p, m, err := guard.Authorize(ctx, userID, c.Param("id"), action)
		if err != nil {
			switch {
			case errors.Is(err, authz.ErrForbidden):
				abort(c, http.StatusForbidden, "forbidden", "You do not have access to this project")
			case errors.Is(err, project.ErrNotFound):
				abort(c, http.StatusNotFound, "not_found", "Project not found")
			default:
				_ = c.Error(err)
				abort(c, http.StatusInternalServerError, "internal_error", "Could not check project access")
			}
			return
		}

		c.Set(CtxProject, p)
		c.Set(CtxMembership, m)

		c.Next()
	}
}

func ProjectFromContext(c *gin.Context) (project.Project, bool) {
	v, ok := c.Get(CtxProject)
	if !ok {
		return project.Project{}, false
	}
	p, ok := v.(project.Project)
	return p, ok
}

func MembershipFromContext(c *gin.Context) (project.Membership, bool) {
	v, ok := c.Get(CtxMembership)
	if !ok {
		return project.Membership{}, false
	}
	m, ok := v.(project.Membership)
	return m, ok
}
