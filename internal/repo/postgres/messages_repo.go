package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/message"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/geocoder89/synergysphere/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessagesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewMessagesRepo(pool *pgxpool.Pool, prom *observability.Prom) *MessagesRepo {
	return &MessagesRepo{pool: pool, prom: prom}
}

const messageSelect = `
	SELECT m.id, m.content, m.project_id, m.author_id, m.created_at,
		u.id, u.name, u.email, u.created_at, u.updated_at
	FROM messages m
	JOIN users u ON u.id = m.author_id`

func (r *MessagesRepo) Create(ctx context.Context, m message.Message) (message.Message, error) {
	var out message.Message

	err := r.prom.ObserveDB("messages.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO messages (id, content, project_id, author_id, created_at)
			VALUES ($1,$2,$3,$4,$5)`,
			m.ID, m.Content, m.ProjectID, m.AuthorID, m.CreatedAt,
		)
		if err != nil {
			return err
		}

		return scanMessage(r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, m.ID), &out)
	})

	if err != nil {
		return message.Message{}, err
	}

	return out, nil
}

// ListByProject returns up to limit messages in chronological order. With a
// cursor, only messages strictly older than it are considered, so walking
// the returned cursors pages backwards through history. hasMore reports
// whether older messages remain.
func (r *MessagesRepo) ListByProject(ctx context.Context, projectID string, limit int, before *utils.MessageCursor) ([]message.Message, bool, error) {
	var (
		beforeAt *time.Time
		beforeID *string
	)
	if before != nil {
		beforeAt = &before.CreatedAt
		beforeID = &before.ID
	}

	out := make([]message.Message, 0, limit)

	err := r.prom.ObserveDB("messages.list_by_project", func() error {
		rows, err := r.pool.Query(ctx, messageSelect+`
			WHERE m.project_id = $1
				AND ($2::timestamptz IS NULL OR (m.created_at, m.id) < ($2::timestamptz, $3::uuid))
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $4`,
			projectID, beforeAt, beforeID, limit+1,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m message.Message
			if err := scanMessage(rows, &m); err != nil {
				return err
			}
			out = append(out, m)
		}

		return rows.Err()
	})

	if err != nil {
		if isNoRows(err) {
			return []message.Message{}, false, nil
		}
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	// newest-first from the query; callers want oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, hasMore, nil
}

func scanMessage(row pgx.Row, m *message.Message) error {
	var author user.User

	err := row.Scan(
		&m.ID, &m.Content, &m.ProjectID, &m.AuthorID, &m.CreatedAt,
		&author.ID, &author.Name, &author.Email, &author.CreatedAt, &author.UpdatedAt,
	)
	if err != nil {
		return err
	}

	m.Author = &author
	return nil
}
