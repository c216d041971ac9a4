package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTaskAssigned         Type = "TASK_ASSIGNED"
	TypeTaskCompleted        Type = "TASK_COMPLETED"
	TypeMessagePosted        Type = "MESSAGE_POSTED"
	TypeProjectInvited       Type = "PROJECT_INVITED"
	TypeProjectMemberRemoved Type = "PROJECT_MEMBER_REMOVED"
)

type ProjectRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId"`
	ProjectID *string   `json:"projectId,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`

	Project *ProjectRef `json:"project,omitempty"`
}

var ErrNotFound = errors.New("notification not found")

type CreateRequest struct {
	Type      Type
	Message   string
	UserID    string
	ProjectID *string
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page struct {
	Items      []Notification `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

func New(req CreateRequest) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Message:   req.Message,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		CreatedAt: time.Now().UTC(),
	}
}

func NewPage(items []Notification, page, limit, total int) Page {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return Page{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}

func TaskAssigned(userID, projectID, taskTitle string) CreateRequest {
	return CreateRequest{
		Type:      TypeTaskAssigned,
		Message:   fmt.Sprintf("You have been assigned a new task: \"%s\"", taskTitle),
		UserID:    userID,
		ProjectID: &projectID,
	}
}

func TaskCompleted(userID, projectID, taskTitle string) CreateRequest {
	return CreateRequest{
		Type:      TypeTaskCompleted,
		Message:   fmt.Sprintf("Task \"%s\" has been completed", taskTitle),
		UserID:    userID,
		ProjectID: &projectID,
	}
}

// MessagePosted expects an already truncated preview.
func MessagePosted(userID, projectID, preview string) CreateRequest {
	return CreateRequest{
		Type:      TypeMessagePosted,
		Message:   fmt.Sprintf("New message in project: \"%s\"", preview),
		UserID:    userID,
		ProjectID: &projectID,
	}
}

func ProjectInvited(userID, projectID, projectName string) CreateRequest {
	return CreateRequest{
		Type:      TypeProjectInvited,
		Message:   fmt.Sprintf("You have been invited to join the project \"%s\"", projectName),
		UserID:    userID,
		ProjectID: &projectID,
	}
}

func MemberRemoved(userID, projectID, projectName string) CreateRequest {
	return CreateRequest{
		Type:      TypeProjectMemberRemoved,
		Message:   fmt.Sprintf("You have been removed from the project \"%s\"", projectName),
		UserID:    userID,
		ProjectID: &projectID,
	}
}
