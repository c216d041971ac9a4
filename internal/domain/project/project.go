package project

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleMember
}

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ProjectID string    `json:"projectId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is a membership joined with the public part of its user.
type Member struct {
	Membership
	User user.User `json:"user"`
}

// Details is the shape returned by the project read endpoints.
type Details struct {
	Project
	Members      []Member `json:"members"`
	TaskCount    int      `json:"taskCount"`
	MessageCount int      `json:"messageCount"`
}

var (
	ErrNotFound            = errors.New("project not found")
	ErrAlreadyMember       = errors.New("user is already a member of this project")
	ErrMemberNotFound      = errors.New("membership not found")
	ErrCannotRemoveCreator = errors.New("cannot remove the project creator")
)

type CreateRequest struct {
	Name        string  `json:"name" binding:"required,notblank,max=120"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

// UpdateRequest is a partial update; nil fields keep their current value.
type UpdateRequest struct {
	Name        *string `json:"name" binding:"omitempty,notblank,max=120"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  Role   `json:"role" binding:"omitempty,oneof=ADMIN MEMBER"`
}

func NewFromCreateRequest(req CreateRequest, createdBy string) Project {
	now := time.Now().UTC()

	return Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func NewMembership(projectID, userID string, role Role) Membership {
	if !role.IsValid() {
		role = RoleMember
	}

	return Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}

// Apply returns p with the non-nil fields of req applied.
func (p Project) Apply(req UpdateRequest) Project {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	p.UpdatedAt = time.Now().UTC()

	return p
}
