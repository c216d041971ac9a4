// Package authz holds the single source of truth for project permissions.
package authz

import (
	"context"
	"errors"

	"github.com/geocoder89/synergysphere/internal/domain/project"
)

type Action string

const (
	ActionView          Action = "view"
	ActionContribute    Action = "contribute"
	ActionUpdateProject Action = "update_project"
	ActionManageMembers Action = "manage_members"
	ActionDeleteProject Action = "delete_project"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotMember = errors.New("user is not a member of the project")
)

// Can reports whether userID may perform action on p given their membership
// (nil when they have none). Deletion is creator-only regardless of role.
func Can(userID string, p project.Project, m *project.Membership, action Action) bool {
	if m == nil || m.UserID != userID || m.ProjectID != p.ID {
		return false
	}

	switch action {
	case ActionView, ActionContribute:
		return true
	case ActionUpdateProject, ActionManageMembers:
		return m.Role == project.RoleAdmin
	case ActionDeleteProject:
		return p.CreatedBy == userID
	default:
		return false
	}
}

type MembershipReader interface {
	GetMembership(ctx context.Context, projectID, userID string) (project.Membership, error)
}

type ProjectReader interface {
	GetByID(ctx context.Context, id string) (project.Project, error)
}

type Guard struct {
	projects ProjectReader
	members  MembershipReader
}

func NewGuard(projects ProjectReader, members MembershipReader) *Guard {
	return &Guard{projects: projects, members: members}
}

// Authorize resolves (userID, projectID) to a membership and applies Can.
// A missing membership is reported as ErrForbidden even when the project
// does not exist, so outsiders learn nothing about project ids.
func (g *Guard) Authorize(ctx context.Context, userID, projectID string, action Action) (project.Project, project.Membership, error) {
	m, err := g.members.GetMembership(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, project.ErrMemberNotFound) {
			return project.Project{}, project.Membership{}, ErrForbidden
		}
		return project.Project{}, project.Membership{}, err
	}

	p, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		return project.Project{}, project.Membership{}, err
	}

	if !Can(userID, p, &m, action) {
		return project.Project{}, project.Membership{}, ErrForbidden
	}

	return p, m, nil
}

// RequireMember checks that userID belongs to projectID, e.g. before assigning them a task.
func (g *Guard) RequireMember(ctx context.Context, projectID, userID string) error {
	_, err := g.members.GetMembership(ctx, projectID, userID)
	if errors.Is(err, project.ErrMemberNotFound) {
		return ErrNotMember
	}

	return err
}
