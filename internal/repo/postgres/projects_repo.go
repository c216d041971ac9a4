package postgres

import (
	"context"

	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewProjectsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ProjectsRepo {
	return &ProjectsRepo{pool: pool, prom: prom}
}

const projectDetailsSelect = `
	SELECT p.id, p.name, p.description, p.created_by, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id),
		(SELECT COUNT(*) FROM messages m WHERE m.project_id = p.id)
	FROM projects p`

// Create inserts the project and the creator's ADMIN membership atomically.
func (r *ProjectsRepo) Create(ctx context.Context, p project.Project) (project.Details, error) {
	creator := project.NewMembership(p.ID, p.CreatedBy, project.RoleAdmin)

	err := r.prom.ObserveDB("projects.create", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx,
			`INSERT INTO projects (id, name, description, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			p.ID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if err := insertMembership(ctx, tx, creator); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return project.Details{}, err
	}

	return r.GetDetails(ctx, p.ID)
}

func (r *ProjectsRepo) GetByID(ctx context.Context, id string) (project.Project, error) {
	var p project.Project

	err := r.prom.ObserveDB("projects.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, description, created_by, created_at, updated_at
			FROM projects WHERE id = $1`, id,
		).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	})

	if err != nil {
		if isNoRows(err) {
			return project.Project{}, project.ErrNotFound
		}
		return project.Project{}, err
	}

	return p, nil
}

func (r *ProjectsRepo) GetDetails(ctx context.Context, id string) (project.Details, error) {
	var d project.Details

	err := r.prom.ObserveDB("projects.get_details", func() error {
		return scanDetails(r.pool.QueryRow(ctx, projectDetailsSelect+` WHERE p.id = $1`, id), &d)
	})

	if err != nil {
		if isNoRows(err) {
			return project.Details{}, project.ErrNotFound
		}
		return project.Details{}, err
	}

	members, err := r.membersOf(ctx, []string{id})
	if err != nil {
		return project.Details{}, err
	}

	d.Members = nonNilMembers(members[id])

	return d, nil
}

// ListForUser returns every project userID belongs to, most recently
// updated first, with members and counts.
func (r *ProjectsRepo) ListForUser(ctx context.Context, userID string) ([]project.Details, error) {
	out := make([]project.Details, 0)

	err := r.prom.ObserveDB("projects.list_for_user", func() error {
		rows, err := r.pool.Query(ctx, projectDetailsSelect+`
			JOIN memberships mm ON mm.project_id = p.id AND mm.user_id = $1
			ORDER BY p.updated_at DESC, p.id`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d project.Details
			if err := scanDetails(rows, &d); err != nil {
				return err
			}
			out = append(out, d)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}

	members, err := r.membersOf(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Members = nonNilMembers(members[out[i].ID])
	}

	return out, nil
}

func (r *ProjectsRepo) Update(ctx context.Context, p project.Project) (project.Project, error) {
	var out project.Project

	err := r.prom.ObserveDB("projects.update", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE projects
			SET name = $2, description = $3, updated_at = $4
			WHERE id = $1
			RETURNING id, name, description, created_by, created_at, updated_at`,
			p.ID, p.Name, p.Description, p.UpdatedAt,
		).Scan(&out.ID, &out.Name, &out.Description, &out.CreatedBy, &out.CreatedAt, &out.UpdatedAt)
	})

	if err != nil {
		if isNoRows(err) {
			return project.Project{}, project.ErrNotFound
		}
		return project.Project{}, err
	}

	return out, nil
}

// Delete removes the project; tasks, messages, memberships and
// project notifications go with it through ON DELETE CASCADE.
func (r *ProjectsRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.prom.ObserveDB("projects.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		if isNoRows(err) {
			return project.ErrNotFound
		}
		return err
	}

	if affected == 0 {
		return project.ErrNotFound
	}

	return nil
}

func (r *ProjectsRepo) membersOf(ctx context.Context, projectIDs []string) (map[string][]project.Member, error) {
	out := make(map[string][]project.Member, len(projectIDs))

	ids := make([]uuid.UUID, 0, len(projectIDs))
	for _, id := range projectIDs {
		if parsed, err := uuid.Parse(id); err == nil {
			ids = append(ids, parsed)
		}
	}

	err := r.prom.ObserveDB("projects.members_of", func() error {
		rows, err := r.pool.Query(ctx, membersSelect+`
			WHERE m.project_id = ANY($1)
			ORDER BY m.created_at, m.id`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m project.Member
			if err := scanMember(rows, &m); err != nil {
				return err
			}
			out[m.ProjectID] = append(out[m.ProjectID], m)
		}

		return rows.Err()
	})

	return out, err
}

func scanDetails(row pgx.Row, d *project.Details) error {
	return row.Scan(
		&d.ID, &d.Name, &d.Description, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
		&d.TaskCount, &d.MessageCount,
	)
}

func nonNilMembers(m []project.Member) []project.Member {
	if m == nil {
		return []project.Member{}
	}
	return m
}
