package postgres

import (
	"context"

	"github.com/geocoder89/synergysphere/internal/domain/project"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MembershipsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewMembershipsRepo(pool *pgxpool.Pool, prom *observability.Prom) *MembershipsRepo {
	return &MembershipsRepo{pool: pool, prom: prom}
}

const membersSelect = `
	SELECT m.id, m.user_id, m.project_id, m.role, m.created_at,
		u.id, u.name, u.email, u.created_at, u.updated_at
	FROM memberships m
	JOIN users u ON u.id = m.user_id`

func (r *MembershipsRepo) GetMembership(ctx context.Context, projectID, userID string) (project.Membership, error) {
	var m project.Membership

	err := r.prom.ObserveDB("memberships.get", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, user_id, project_id, role, created_at
			FROM memberships
			WHERE project_id = $1 AND user_id = $2`,
			projectID, userID,
		).Scan(&m.ID, &m.UserID, &m.ProjectID, &m.Role, &m.CreatedAt)
	})

	if err != nil {
		if isNoRows(err) {
			return project.Membership{}, project.ErrMemberNotFound
		}
		return project.Membership{}, err
	}

	return m, nil
}

func (r *MembershipsRepo) ListMembers(ctx context.Context, projectID string) ([]project.Member, error) {
	out := make([]project.Member, 0)

	err := r.prom.ObserveDB("memberships.list", func() error {
		rows, err := r.pool.Query(ctx, membersSelect+`
			WHERE m.project_id = $1
			ORDER BY m.created_at, m.id`, projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m project.Member
			if err := scanMember(rows, &m); err != nil {
				return err
			}
			out = append(out, m)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// ListUserIDs returns the ids of every member of projectID.
func (r *MembershipsRepo) ListUserIDs(ctx context.Context, projectID string) ([]string, error) {
	out := make([]string, 0)

	err := r.prom.ObserveDB("memberships.list_user_ids", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT user_id FROM memberships WHERE project_id = $1`, projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// Add relies on memberships_user_project_uniq to reject duplicates, so two
// concurrent invites of the same user yield one row and one ErrAlreadyMember.
func (r *MembershipsRepo) Add(ctx context.Context, m project.Membership) (project.Member, error) {
	err := r.prom.ObserveDB("memberships.add", func() error {
		return insertMembership(ctx, r.pool, m)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return project.Member{}, project.ErrAlreadyMember
		}
		return project.Member{}, err
	}

	var out project.Member

	err = r.prom.ObserveDB("memberships.get_member", func() error {
		return scanMember(r.pool.QueryRow(ctx, membersSelect+` WHERE m.id = $1`, m.ID), &out)
	})
	if err != nil {
		return project.Member{}, err
	}

	return out, nil
}

func (r *MembershipsRepo) Remove(ctx context.Context, projectID, userID string) error {
	var affected int64

	err := r.prom.ObserveDB("memberships.remove", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM memberships WHERE project_id = $1 AND user_id = $2`,
			projectID, userID,
		)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		if isNoRows(err) {
			return project.ErrMemberNotFound
		}
		return err
	}

	if affected == 0 {
		return project.ErrMemberNotFound
	}

	return nil
}

func insertMembership(ctx context.Context, q querier, m project.Membership) error {
	_, err := q.Exec(ctx,
		`INSERT INTO memberships (id, user_id, project_id, role, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.UserID, m.ProjectID, m.Role, m.CreatedAt,
	)
	return err
}

func scanMember(row pgx.Row, m *project.Member) error {
	return row.Scan(
		&m.ID, &m.UserID, &m.ProjectID, &m.Role, &m.CreatedAt,
		&m.User.ID, &m.User.Name, &m.User.Email, &m.User.CreatedAt, &m.User.UpdatedAt,
	)
}
