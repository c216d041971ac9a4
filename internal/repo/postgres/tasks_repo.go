package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/task"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TasksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTasksRepo(pool *pgxpool.Pool, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{pool: pool, prom: prom}
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority, t.project_id,
		t.assignee_id, t.due_date, t.created_at, t.updated_at,
		a.name, a.email, a.created_at, a.updated_at
	FROM tasks t
	LEFT JOIN users a ON a.id = t.assignee_id`

const priorityOrder = `CASE t.priority
		WHEN 'URGENT' THEN 4
		WHEN 'HIGH' THEN 3
		WHEN 'MEDIUM' THEN 2
		ELSE 1
	END`

func (r *TasksRepo) Create(ctx context.Context, t task.Task) (task.Task, error) {
	err := r.prom.ObserveDB("tasks.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO tasks (id, title, description, status, priority, project_id, assignee_id, due_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			t.ID, t.Title, t.Description, t.Status, t.Priority, t.ProjectID, t.AssigneeID, t.DueDate, t.CreatedAt, t.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return task.Task{}, err
	}

	return r.GetByID(ctx, t.ID)
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	var t task.Task

	err := r.prom.ObserveDB("tasks.get_by_id", func() error {
		return scanTask(r.pool.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id), &t)
	})

	if err != nil {
		if isNoRows(err) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}

	return t, nil
}

// ListByProject orders by priority (URGENT first), then newest first.
func (r *TasksRepo) ListByProject(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error) {
	conds := []string{"t.project_id = $1"}
	args := []any{projectID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("t.status = $%d", len(args)))
	}

	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		conds = append(conds, fmt.Sprintf("t.priority = $%d", len(args)))
	}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		conds = append(conds, fmt.Sprintf("t.assignee_id = $%d", len(args)))
	}

	query := taskSelect + " WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY " + priorityOrder + " DESC, t.created_at DESC, t.id"

	out := make([]task.Task, 0)

	err := r.prom.ObserveDB("tasks.list_by_project", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t task.Task
			if err := scanTask(rows, &t); err != nil {
				return err
			}
			out = append(out, t)
		}

		return rows.Err()
	})

	if err != nil {
		if isNoRows(err) {
			return []task.Task{}, nil
		}
		return nil, err
	}

	return out, nil
}

// Update writes every mutable column of t (last write wins).
func (r *TasksRepo) Update(ctx context.Context, t task.Task) (task.Task, error) {
	var affected int64

	err := r.prom.ObserveDB("tasks.update", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE tasks
			SET title = $2,
				description = $3,
				status = $4,
				priority = $5,
				assignee_id = $6,
				due_date = $7,
				updated_at = $8
			WHERE id = $1`,
			t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssigneeID, t.DueDate, t.UpdatedAt,
		)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		return task.Task{}, err
	}

	if affected == 0 {
		return task.Task{}, task.ErrNotFound
	}

	return r.GetByID(ctx, t.ID)
}

func (r *TasksRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.prom.ObserveDB("tasks.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		if isNoRows(err) {
			return task.ErrNotFound
		}
		return err
	}

	if affected == 0 {
		return task.ErrNotFound
	}

	return nil
}

func scanTask(row pgx.Row, t *task.Task) error {
	var (
		name, email          *string
		createdAt, updatedAt *time.Time
	)

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.ProjectID,
		&t.AssigneeID, &t.DueDate, &t.CreatedAt, &t.UpdatedAt,
		&name, &email, &createdAt, &updatedAt,
	)
	if err != nil {
		return err
	}

	if t.AssigneeID != nil && name != nil {
		t.Assignee = &user.User{
			ID:        *t.AssigneeID,
			Name:      *name,
			Email:     *email,
			CreatedAt: *createdAt,
			UpdatedAt: *updatedAt,
		}
	}

	return nil
}
