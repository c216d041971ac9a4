package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, r http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode body %q: %v", w.Body.String(), err)
		}
	}

	return w, env
}

func mustData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", string(env.Data), err)
	}
	return out
}

// asUser stands in for RequireAuth.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.CtxUserID, userID)
		c.Next()
	}
}

// inProject stands in for RequireProjectAccess.
func inProject(p project.Project, role project.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middlewares.UserIDFromContext(c)
		c.Set(middlewares.CtxProject, p)
		c.Set(middlewares.CtxMembership, project.Membership{UserID: userID, ProjectID: p.ID, Role: role})
		c.Next()
	}
}

// users

type memUsers struct {
	mu   sync.Mutex
	byID map[string]user.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]user.User)}
}

func (m *memUsers) Create(_ context.Context, u user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return user.User{}, user.ErrEmailTaken
		}
	}
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = user.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

// refresh tokens

type memRefresh struct {
	mu     sync.Mutex
	byHash map[string]postgres.RefreshTokenRow
}

func newMemRefresh() *memRefresh {
	return &memRefresh{byHash: make(map[string]postgres.RefreshTokenRow)}
}

func (m *memRefresh) Create(_ context.Context, row postgres.RefreshTokenRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byHash[row.TokenHash] = row
	return nil
}

func (m *memRefresh) GetByHash(_ context.Context, hash string) (postgres.RefreshTokenRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.byHash[hash]
	if !ok {
		return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
	}
	return row, nil
}

func (m *memRefresh) DeleteByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byHash, hash)
	return nil
}

func (m *memRefresh) DeleteExpiredForUser(_ context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h, row := range m.byHash {
		if row.UserID == userID && !row.ExpiresAt.After(now) {
			delete(m.byHash, h)
		}
	}
	return nil
}

func (m *memRefresh) Rotate(_ context.Context, oldHash string, now time.Time, next postgres.RefreshTokenRow) (postgres.RefreshTokenRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byHash[oldHash]
	if !ok || !old.ExpiresAt.After(now) {
		return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
	}
	delete(m.byHash, oldHash)
	m.byHash[next.TokenHash] = next
	return old, nil
}

func (m *memRefresh) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// notifier

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.CreateRequest
}

func (n *recordingNotifier) Notify(_ context.Context, reqs ...notification.CreateRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, reqs...)
	return nil
}

func (n *recordingNotifier) all() []notification.CreateRequest {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]notification.CreateRequest, len(n.sent))
	copy(out, n.sent)
	return out
}

// memberships and projects, for a real authz.Guard

type memProjects struct {
	projects map[string]project.Project
	// members[projectID][userID]
	members map[string]map[string]project.Role
}

func newMemProjects() *memProjects {
	return &memProjects{
		projects: make(map[string]project.Project),
		members:  make(map[string]map[string]project.Role),
	}
}

func (m *memProjects) add(p project.Project, members map[string]project.Role) {
	m.projects[p.ID] = p
	m.members[p.ID] = members
}

func (m *memProjects) GetByID(_ context.Context, id string) (project.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (m *memProjects) GetMembership(_ context.Context, projectID, userID string) (project.Membership, error) {
	role, ok := m.members[projectID][userID]
	if !ok {
		return project.Membership{}, project.ErrMemberNotFound
	}
	return project.Membership{ID: projectID + ":" + userID, UserID: userID, ProjectID: projectID, Role: role}, nil
}

func (m *memProjects) ListUserIDs(_ context.Context, projectID string) ([]string, error) {
	ids := make([]string, 0, len(m.members[projectID]))
	for id := range m.members[projectID] {
		ids = append(ids, id)
	}
	return ids, nil
}
