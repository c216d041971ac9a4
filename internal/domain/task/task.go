package task

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/google/uuid"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func (s Status) IsValid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh || p == PriorityUrgent
}

// Rank orders priorities from LOW (0) to URGENT (3); unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 0
	}
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	ProjectID   string     `json:"projectId"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Assignee *user.User `json:"assignee,omitempty"`
}

var ErrNotFound = errors.New("task not found")

type CreateRequest struct {
	Title       string     `json:"title" binding:"required,notblank,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=5000"`
	AssigneeID  *string    `json:"assigneeId" binding:"omitempty,uuid"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    Priority   `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

// UpdateRequest is a partial update. An assignee can be changed but not
// cleared, matching how the web client uses the endpoint.
type UpdateRequest struct {
	Title       *string    `json:"title" binding:"omitempty,notblank,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=5000"`
	Status      *Status    `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	AssigneeID  *string    `json:"assigneeId" binding:"omitempty,uuid"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    *Priority  `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

type ListFilter struct {
	Status     *Status
	Priority   *Priority
	AssigneeID *string
}

func NewFromCreateRequest(projectID string, req CreateRequest) Task {
	now := time.Now().UTC()

	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	var due *time.Time
	if req.DueDate != nil {
		d := req.DueDate.UTC()
		due = &d
	}

	return Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      StatusTodo,
		Priority:    priority,
		ProjectID:   projectID,
		AssigneeID:  req.AssigneeID,
		DueDate:     due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply returns t with the non-nil fields of req applied.
func (t Task) Apply(req UpdateRequest) Task {
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.AssigneeID != nil && *req.AssigneeID != "" {
		id := *req.AssigneeID
		t.AssigneeID = &id
		t.Assignee = nil
	}
	if req.DueDate != nil {
		d := req.DueDate.UTC()
		t.DueDate = &d
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	t.UpdatedAt = time.Now().UTC()

	return t
}

// AssigneeChanged reports whether req moves the task to a different assignee.
func (t Task) AssigneeChanged(req UpdateRequest) bool {
	if req.AssigneeID == nil || *req.AssigneeID == "" {
		return false
	}

	return t.AssigneeID == nil || *t.AssigneeID != *req.AssigneeID
}

// IsOverdue is true for unfinished tasks whose due date has passed.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.Status != StatusDone && t.DueDate.Before(now)
}
