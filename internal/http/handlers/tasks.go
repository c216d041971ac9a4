package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/synergysphere/internal/authz"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/domain/task"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/notifications"
	"github.com/gin-gonic/gin"
)

type TaskStore interface {
	Create(ctx context.Context, t task.Task) (task.Task, error)
	ListByProject(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	Update(ctx context.Context, t task.Task) (task.Task, error)
	Delete(ctx context.Context, id string) error
}

type ProjectGuard interface {
	Authorize(ctx context.Context, userID, projectID string, action authz.Action) (project.Project, project.Membership, error)
	RequireMember(ctx context.Context, projectID, userID string) error
}

type TasksHandler struct {
	tasks    TaskStore
	guard    ProjectGuard
	notifier notifications.Notifier
}

func NewTasksHandler(tasks TaskStore, guard ProjectGuard, notifier notifications.Notifier) *TasksHandler {
	return &TasksHandler{tasks: tasks, guard: guard, notifier: notifier}
}

// Create runs behind RequireProjectAccess(contribute) on /projects/:id/tasks.
func (h *TasksHandler) Create(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	var req task.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	if req.AssigneeID != nil && *req.AssigneeID != "" {
		if err := h.guard.RequireMember(cctx, p.ID, *req.AssigneeID); err != nil {
			respondDomainError(ctx, err, "Could not create task")
			return
		}
	} else {
		req.AssigneeID = nil
	}

	created, err := h.tasks.Create(cctx, task.NewFromCreateRequest(p.ID, req))
	if err != nil {
		RespondInternal(ctx, "Could not create task", err)
		return
	}

	if created.AssigneeID != nil {
		_ = h.notifier.Notify(cctx, notification.TaskAssigned(*created.AssigneeID, p.ID, created.Title))
	}

	RespondOK(ctx, http.StatusCreated, "Task created successfully", created)
}

func (h *TasksHandler) List(ctx *gin.Context) {
	p, _ := middlewares.ProjectFromContext(ctx)

	filter, ok := parseTaskFilter(ctx)
	if !ok {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	items, err := h.tasks.ListByProject(cctx, p.ID, filter)
	if err != nil {
		RespondInternal(ctx, "Could not list tasks", err)
		return
	}

	RespondOKWithETag(ctx, "Tasks retrieved", items)
}

func (h *TasksHandler) Get(ctx *gin.Context) {
	t, ok := h.loadAuthorized(ctx, authz.ActionView)
	if !ok {
		return
	}

	RespondOK(ctx, http.StatusOK, "Task retrieved", t)
}

func (h *TasksHandler) Update(ctx *gin.Context) {
	current, ok := h.loadAuthorized(ctx, authz.ActionContribute)
	if !ok {
		return
	}

	var req task.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	assigneeChanged := current.AssigneeChanged(req)
	if assigneeChanged {
		if err := h.guard.RequireMember(cctx, current.ProjectID, *req.AssigneeID); err != nil {
			respondDomainError(ctx, err, "Could not update task")
			return
		}
	}

	updated, err := h.tasks.Update(cctx, current.Apply(req))
	if err != nil {
		respondDomainError(ctx, err, "Could not update task")
		return
	}

	var events []notification.CreateRequest

	if updated.Status == task.StatusDone && current.Status != task.StatusDone {
		recipient, _ := middlewares.UserIDFromContext(ctx)
		if current.AssigneeID != nil {
			recipient = *current.AssigneeID
		}
		events = append(events, notification.TaskCompleted(recipient, updated.ProjectID, updated.Title))
	}

	if assigneeChanged {
		events = append(events, notification.TaskAssigned(*req.AssigneeID, updated.ProjectID, updated.Title))
	}

	_ = h.notifier.Notify(cctx, events...)

	RespondOK(ctx, http.StatusOK, "Task updated successfully", updated)
}

func (h *TasksHandler) Delete(ctx *gin.Context) {
	t, ok := h.loadAuthorized(ctx, authz.ActionContribute)
	if !ok {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	if err := h.tasks.Delete(cctx, t.ID); err != nil {
		respondDomainError(ctx, err, "Could not delete task")
		return
	}

	RespondOK(ctx, http.StatusOK, "Task deleted successfully", nil)
}

// loadAuthorized fetches the task in :id and checks the caller may perform
// action on its project. It writes the error response itself. An unknown id
// answers 403 like a task of a foreign project, so ids cannot be probed.
func (h *TasksHandler) loadAuthorized(ctx *gin.Context, action authz.Action) (task.Task, bool) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return task.Task{}, false
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	t, err := h.tasks.GetByID(cctx, ctx.Param("id"))
	if errors.Is(err, task.ErrNotFound) {
		err = authz.ErrForbidden
	}
	if err != nil {
		respondDomainError(ctx, err, "Could not load task")
		return task.Task{}, false
	}

	if _, _, err := h.guard.Authorize(cctx, userID, t.ProjectID, action); err != nil {
		respondDomainError(ctx, err, "Could not load task")
		return task.Task{}, false
	}

	return t, true
}

func parseTaskFilter(ctx *gin.Context) (task.ListFilter, bool) {
	var f task.ListFilter

	if v := ctx.Query("status"); v != "" {
		s := task.Status(v)
		if !s.IsValid() {
			RespondBadRequest(ctx, "Invalid status filter", gin.H{"status": "must be one of TODO, IN_PROGRESS, DONE"})
			return f, false
		}
		f.Status = &s
	}

	if v := ctx.Query("priority"); v != "" {
		p := task.Priority(v)
		if !p.IsValid() {
			RespondBadRequest(ctx, "Invalid priority filter", gin.H{"priority": "must be one of LOW, MEDIUM, HIGH, URGENT"})
			return f, false
		}
		f.Priority = &p
	}

	if v := ctx.Query("assigneeId"); v != "" {
		f.AssigneeID = &v
	}

	return f, true
}
