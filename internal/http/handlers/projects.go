package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/domain/task"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/notifications"
	"github.com/gin-gonic/gin"
)

type ProjectStore interface {
	Create(ctx context.Context, p project.Project) (project.Details, error)
	ListForUser(ctx context.Context, userID string) ([]project.Details, error)
	GetDetails(ctx context.Context, id string) (project.Details, error)
	Update(ctx context.Context, p project.Project) (project.Project, error)
	Delete(ctx context.Context, id string) error
}

type MemberStore interface {
	ListMembers(ctx context.Context, projectID string) ([]project.Member, error)
	Add(ctx context.Context, m project.Membership) (project.Member, error)
	Remove(ctx context.Context, projectID, userID string) error
}

type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TaskLister interface {
	ListByProject(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error)
}

// ProjectsHandler serves /projects. Routes under /projects/:id run behind
// middlewares.RequireProjectAccess, which has already loaded the project.
type ProjectsHandler struct {
	projects ProjectStore
	members  MemberStore
	users    UserFinder
	tasks    TaskLister
	notifier notifications.Notifier
	now      func() time.Time
}

func NewProjectsHandler(projects ProjectStore, members MemberStore, users UserFinder, tasks TaskLister, notifier notifications.Notifier) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		members:  members,
		users:    users,
		tasks:    tasks,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *ProjectsHandler) Create(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req project.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	d, err := h.projects.Create(cctx, project.NewFromCreateRequest(req, userID))
	if err != nil {
		RespondInternal(ctx, "Could not create project", err)
		return
	}

	RespondOK(ctx, http.StatusCreated, "Project created successfully", d)
}

func (h *ProjectsHandler) List(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	items, err := h.projects.ListForUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not list projects", err)
		return
	}

	RespondOKWithETag(ctx, "Projects retrieved", items)
}

func (h *ProjectsHandler) Get(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	d, err := h.projects.GetDetails(cctx, p.ID)
	if err != nil {
		respondDomainError(ctx, err, "Could not load project")
		return
	}

	RespondOKWithETag(ctx, "Project retrieved", d)
}

func (h *ProjectsHandler) Update(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	var req project.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	updated, err := h.projects.Update(cctx, p.Apply(req))
	if err != nil {
		respondDomainError(ctx, err, "Could not update project")
		return
	}

	RespondOK(ctx, http.StatusOK, "Project updated successfully", updated)
}

func (h *ProjectsHandler) Delete(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	if err := h.projects.Delete(cctx, p.ID); err != nil {
		respondDomainError(ctx, err, "Could not delete project")
		return
	}

	RespondOK(ctx, http.StatusOK, "Project deleted successfully", nil)
}

func (h *ProjectsHandler) Invite(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	var req project.InviteRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	invitee, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		respondDomainError(ctx, err, "Could not invite user")
		return
	}

	role := req.Role
	if role == "" {
		role = project.RoleMember
	}

	m, err := h.members.Add(cctx, project.NewMembership(p.ID, invitee.ID, role))
	if err != nil {
		respondDomainError(ctx, err, "Could not invite user")
		return
	}

	_ = h.notifier.Notify(cctx, notification.ProjectInvited(invitee.ID, p.ID, p.Name))

	RespondOK(ctx, http.StatusCreated, "User invited successfully", m)
}

func (h *ProjectsHandler) RemoveMember(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)
	target := ctx.Param("userId")

	if target == p.CreatedBy {
		respondDomainError(ctx, project.ErrCannotRemoveCreator, "")
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	if err := h.members.Remove(cctx, p.ID, target); err != nil {
		respondDomainError(ctx, err, "Could not remove member")
		return
	}

	_ = h.notifier.Notify(cctx, notification.MemberRemoved(target, p.ID, p.Name))

	RespondOK(ctx, http.StatusOK, "Member removed successfully", nil)
}

func (h *ProjectsHandler) Members(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	members, err := h.members.ListMembers(cctx, p.ID)
	if err != nil {
		RespondInternal(ctx, "Could not list members", err)
		return
	}

	RespondOKWithETag(ctx, "Members retrieved", members)
}

func (h *ProjectsHandler) Overview(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	tasks, err := h.tasks.ListByProject(cctx, p.ID, task.ListFilter{})
	if err != nil {
		RespondInternal(ctx, "Could not build overview", err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Project overview retrieved", task.Summarize(tasks, h.now()))
}
