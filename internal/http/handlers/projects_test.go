package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/synergysphere/internal/authz"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/domain/task"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/http/handlers"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type fakeProjectStore struct {
	createFn  func(ctx context.Context, p project.Project) (project.Details, error)
	listFn    func(ctx context.Context, userID string) ([]project.Details, error)
	detailsFn func(ctx context.Context, id string) (project.Details, error)
	updateFn  func(ctx context.Context, p project.Project) (project.Project, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (f *fakeProjectStore) Create(ctx context.Context, p project.Project) (project.Details, error) {
	if f.createFn == nil {
		return project.Details{Project: p}, nil
	}
	return f.createFn(ctx, p)
}

func (f *fakeProjectStore) ListForUser(ctx context.Context, userID string) ([]project.Details, error) {
	if f.listFn == nil {
		return []project.Details{}, nil
	}
	return f.listFn(ctx, userID)
}

func (f *fakeProjectStore) GetDetails(ctx context.Context, id string) (project.Details, error) {
	if f.detailsFn == nil {
		return project.Details{Project: project.Project{ID: id}}, nil
	}
	return f.detailsFn(ctx, id)
}

func (f *fakeProjectStore) Update(ctx context.Context, p project.Project) (project.Project, error) {
	if f.updateFn == nil {
		return p, nil
	}
	return f.updateFn(ctx, p)
}

func (f *fakeProjectStore) Delete(ctx context.Context, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

type fakeMemberStore struct {
	addFn    func(ctx context.Context, m project.Membership) (project.Member, error)
	removeFn func(ctx context.Context, projectID, userID string) error
}

func (f *fakeMemberStore) ListMembers(context.Context, string) ([]project.Member, error) {
	return []project.Member{}, nil
}

func (f *fakeMemberStore) Add(ctx context.Context, m project.Membership) (project.Member, error) {
	if f.addFn == nil {
		return project.Member{Membership: m}, nil
	}
	return f.addFn(ctx, m)
}

func (f *fakeMemberStore) Remove(ctx context.Context, projectID, userID string) error {
	if f.removeFn == nil {
		return nil
	}
	return f.removeFn(ctx, projectID, userID)
}

type fakeTaskLister struct {
	items []task.Task
}

func (f fakeTaskLister) ListByProject(context.Context, string, task.ListFilter) ([]task.Task, error) {
	return f.items, nil
}

var testProject = project.Project{ID: "p-1", Name: "Apollo", CreatedBy: "owner"}

func newProjectsRouter(h *handlers.ProjectsHandler, userID string, role project.Role) *gin.Engine {
	r := gin.New()
	r.Use(asUser(userID))
	r.POST("/projects", h.Create)
	r.GET("/projects", h.List)

	g := r.Group("/projects/:id", inProject(testProject, role))
	g.GET("", h.Get)
	g.PUT("", h.Update)
	g.DELETE("", h.Delete)
	g.POST("/invite", h.Invite)
	g.DELETE("/members/:userId", h.RemoveMember)
	g.GET("/overview", h.Overview)

	return r
}

func TestProjectsCreate_CreatorOwnsProject(t *testing.T) {
	var got project.Project
	store := &fakeProjectStore{createFn: func(_ context.Context, p project.Project) (project.Details, error) {
		got = p
		return project.Details{Project: p}, nil
	}}
	h := handlers.NewProjectsHandler(store, &fakeMemberStore{}, newMemUsers(), fakeTaskLister{}, &recordingNotifier{})

	w, _ := doJSON(t, newProjectsRouter(h, "u-1", project.RoleAdmin), http.MethodPost, "/projects", `{"name":"  Apollo  "}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}
	if got.CreatedBy != "u-1" || got.Name != "Apollo" || got.ID == "" {
		t.Fatalf("unexpected project: %+v", got)
	}
}

func TestProjectsCreate_RequiresName(t *testing.T) {
	h := handlers.NewProjectsHandler(&fakeProjectStore{}, &fakeMemberStore{}, newMemUsers(), fakeTaskLister{}, &recordingNotifier{})

	w, _ := doJSON(t, newProjectsRouter(h, "u-1", project.RoleAdmin), http.MethodPost, "/projects", `{"description":"x"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestProjectsUpdate_PartialFields(t *testing.T) {
	desc := "old"
	p := testProject
	p.Description = &desc

	var got project.Project
	store := &fakeProjectStore{updateFn: func(_ context.Context, p project.Project) (project.Project, error) {
		got = p
		return p, nil
	}}
	h := handlers.NewProjectsHandler(store, &fakeMemberStore{}, newMemUsers(), fakeTaskLister{}, &recordingNotifier{})

	r := gin.New()
	r.PUT("/projects/:id", asUser("owner"), inProject(p, project.RoleAdmin), h.Update)

	w, _ := doJSON(t, r, http.MethodPut, "/projects/p-1", `{"name":"Artemis"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}
	if got.Name != "Artemis" || got.Description == nil || *got.Description != "old" {
		t.Fatalf("unexpected update: %+v", got)
	}
}

func TestProjectsInvite(t *testing.T) {
	users := newMemUsers()
	invitee, _ := users.Create(context.Background(), user.New("Ada", "ada@example.com", "hash"))

	tests := []struct {
		name       string
		body       string
		addErr     error
		wantStatus int
		wantNotify bool
	}{
		{name: "ok", body: `{"email":"ada@example.com"}`, wantStatus: http.StatusCreated, wantNotify: true},
		{name: "unknown email", body: `{"email":"ghost@example.com"}`, wantStatus: http.StatusNotFound},
		{name: "already member", body: `{"email":"ada@example.com"}`, addErr: project.ErrAlreadyMember, wantStatus: http.StatusConflict},
		{name: "bad role", body: `{"email":"ada@example.com","role":"OWNER"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var added project.Membership
			members := &fakeMemberStore{addFn: func(_ context.Context, m project.Membership) (project.Member, error) {
				added = m
				return project.Member{Membership: m}, tc.addErr
			}}
			notifier := &recordingNotifier{}
			h := handlers.NewProjectsHandler(&fakeProjectStore{}, members, users, fakeTaskLister{}, notifier)

			w, _ := doJSON(t, newProjectsRouter(h, "owner", project.RoleAdmin), http.MethodPost, "/projects/p-1/invite", tc.body)

			if w.Code != tc.wantStatus {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}

			sent := notifier.all()
			if !tc.wantNotify {
				if len(sent) != 0 {
					t.Fatalf("unexpected notifications: %+v", sent)
				}
				return
			}

			if added.UserID != invitee.ID || added.Role != project.RoleMember {
				t.Fatalf("unexpected membership: %+v", added)
			}
			if len(sent) != 1 || sent[0].Type != notification.TypeProjectInvited || sent[0].UserID != invitee.ID {
				t.Fatalf("unexpected notifications: %+v", sent)
			}
		})
	}
}

func TestProjectsRemoveMember(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		removeErr  error
		wantStatus int
	}{
		{name: "ok", target: "u-2", wantStatus: http.StatusOK},
		{name: "creator", target: "owner", wantStatus: http.StatusBadRequest},
		{name: "not a member", target: "u-9", removeErr: project.ErrMemberNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			members := &fakeMemberStore{removeFn: func(context.Context, string, string) error { return tc.removeErr }}
			notifier := &recordingNotifier{}
			h := handlers.NewProjectsHandler(&fakeProjectStore{}, members, newMemUsers(), fakeTaskLister{}, notifier)

			w, _ := doJSON(t, newProjectsRouter(h, "owner", project.RoleAdmin), http.MethodDelete, "/projects/p-1/members/"+tc.target, "")

			if w.Code != tc.wantStatus {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}

			sent := notifier.all()
			if tc.wantStatus == http.StatusOK {
				if len(sent) != 1 || sent[0].Type != notification.TypeProjectMemberRemoved || sent[0].UserID != tc.target {
					t.Fatalf("unexpected notifications: %+v", sent)
				}
			} else if len(sent) != 0 {
				t.Fatalf("unexpected notifications: %+v", sent)
			}
		})
	}
}

func TestProjectsDelete_StoreError(t *testing.T) {
	store := &fakeProjectStore{deleteFn: func(context.Context, string) error { return errors.New("boom") }}
	h := handlers.NewProjectsHandler(store, &fakeMemberStore{}, newMemUsers(), fakeTaskLister{}, &recordingNotifier{})

	w, env := doJSON(t, newProjectsRouter(h, "owner", project.RoleAdmin), http.MethodDelete, "/projects/p-1", "")

	if w.Code != http.StatusInternalServerError || env.Error.Code != "internal_error" {
		t.Fatalf("got %d %q", w.Code, env.Error.Code)
	}
}

func TestProjectsOverview(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	alice := "alice"
	tasks := fakeTaskLister{items: []task.Task{
		{ID: "t1", Status: task.StatusDone, AssigneeID: &alice},
		{ID: "t2", Status: task.StatusTodo, DueDate: &past},
		{ID: "t3", Status: task.StatusInProgress, AssigneeID: &alice},
	}}
	h := handlers.NewProjectsHandler(&fakeProjectStore{}, &fakeMemberStore{}, newMemUsers(), tasks, &recordingNotifier{})

	w, env := doJSON(t, newProjectsRouter(h, "owner", project.RoleMember), http.MethodGet, "/projects/p-1/overview", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}

	got := mustData[task.Overview](t, env)
	if got.TotalTasks != 3 || got.CompletedTasks != 1 || got.OverdueTasks != 1 || got.CompletionPercentage != 33 {
		t.Fatalf("unexpected overview: %+v", got)
	}
}

// Every project-scoped route answers 403 to an outsider, whether or not the
// project exists.
func TestProjectScopedRoutes_NonMemberForbidden(t *testing.T) {
	repo := newMemProjects()
	repo.add(testProject, map[string]project.Role{
		"owner":  project.RoleAdmin,
		"admin":  project.RoleAdmin,
		"member": project.RoleMember,
	})
	guard := authz.NewGuard(repo, repo)

	noop := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	routes := []struct {
		method string
		path   string
		action authz.Action
	}{
		{http.MethodGet, "", authz.ActionView},
		{http.MethodPut, "", authz.ActionUpdateProject},
		{http.MethodDelete, "", authz.ActionDeleteProject},
		{http.MethodPost, "/invite", authz.ActionManageMembers},
		{http.MethodGet, "/members", authz.ActionView},
		{http.MethodGet, "/overview", authz.ActionView},
		{http.MethodPost, "/tasks", authz.ActionContribute},
		{http.MethodGet, "/tasks", authz.ActionView},
		{http.MethodPost, "/messages", authz.ActionContribute},
		{http.MethodGet, "/messages", authz.ActionView},
	}

	r := gin.New()
	g := r.Group("/projects/:id", func(c *gin.Context) {
		c.Set(middlewares.CtxUserID, c.GetHeader("X-User"))
		c.Next()
	})
	for _, rt := range routes {
		g.Handle(rt.method, rt.path, middlewares.RequireProjectAccess(guard, rt.action), noop)
	}

	for _, projectID := range []string{testProject.ID, "does-not-exist"} {
		for _, rt := range routes {
			w, env := doJSON(t, r, rt.method, "/projects/"+projectID+rt.path, "", "X-User", "stranger")
			if w.Code != http.StatusForbidden || env.Error.Code != "forbidden" {
				t.Fatalf("%s %s on %s: got %d %q, want 403", rt.method, rt.path, projectID, w.Code, env.Error.Code)
			}
		}
	}

	// plain members cannot administer, admins cannot delete someone else's project
	denied := []struct {
		user   string
		method string
		path   string
	}{
		{"member", http.MethodPut, ""},
		{"member", http.MethodPost, "/invite"},
		{"member", http.MethodDelete, ""},
		{"admin", http.MethodDelete, ""},
	}
	for _, d := range denied {
		w, _ := doJSON(t, r, d.method, "/projects/p-1"+d.path, "", "X-User", d.user)
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s %s %s: got %d, want 403", d.user, d.method, d.path, w.Code)
		}
	}

	w, _ := doJSON(t, r, http.MethodDelete, "/projects/p-1", "", "X-User", "owner")
	if w.Code != http.StatusNoContent {
		t.Fatalf("creator delete: got %d", w.Code)
	}
}
