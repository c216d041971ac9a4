package postgres

import (
	"context"

	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewNotificationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotificationsRepo {
	return &NotificationsRepo{pool: pool, prom: prom}
}

// CreateMany inserts all rows in one round trip.
func (r *NotificationsRepo) CreateMany(ctx context.Context, items []notification.Notification) error {
	if len(items) == 0 {
		return nil
	}

	return r.prom.ObserveDB("notifications.create_many", func() error {
		batch := &pgx.Batch{}
		for _, n := range items {
			batch.Queue(
				`INSERT INTO notifications (id, type, message, user_id, project_id, is_read, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				n.ID, n.Type, n.Message, n.UserID, n.ProjectID, n.IsRead, n.CreatedAt,
			)
		}

		return r.pool.SendBatch(ctx, batch).Close()
	})
}

// ListForUser returns one page of userID's notifications, newest first, with
// a summary of the related project when there is one.
func (r *NotificationsRepo) ListForUser(ctx context.Context, userID string, page, limit int) ([]notification.Notification, int, error) {
	out := make([]notification.Notification, 0, limit)
	total := 0

	err := r.prom.ObserveDB("notifications.list_for_user", func() error {
		err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID,
		).Scan(&total)
		if err != nil {
			return err
		}

		rows, err := r.pool.Query(ctx, `
			SELECT n.id, n.type, n.message, n.user_id, n.project_id, n.is_read, n.created_at,
				p.id, p.name, p.description
			FROM notifications n
			LEFT JOIN projects p ON p.id = n.project_id
			WHERE n.user_id = $1
			ORDER BY n.created_at DESC, n.id DESC
			LIMIT $2 OFFSET $3`,
			userID, limit, (page-1)*limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				n         notification.Notification
				projectID *string
				name      *string
				desc      *string
			)

			err := rows.Scan(
				&n.ID, &n.Type, &n.Message, &n.UserID, &n.ProjectID, &n.IsRead, &n.CreatedAt,
				&projectID, &name, &desc,
			)
			if err != nil {
				return err
			}

			if projectID != nil && name != nil {
				n.Project = &notification.ProjectRef{ID: *projectID, Name: *name, Description: desc}
			}

			out = append(out, n)
		}

		return rows.Err()
	})

	if err != nil {
		if isNoRows(err) {
			return []notification.Notification{}, 0, nil
		}
		return nil, 0, err
	}

	return out, total, nil
}

// MarkRead is idempotent; it only fails when the notification does not
// exist or belongs to someone else.
func (r *NotificationsRepo) MarkRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	var n notification.Notification

	err := r.prom.ObserveDB("notifications.mark_read", func() error {
		return r.pool.QueryRow(ctx, `
			UPDATE notifications
			SET is_read = TRUE
			WHERE id = $1 AND user_id = $2
			RETURNING id, type, message, user_id, project_id, is_read, created_at`,
			id, userID,
		).Scan(&n.ID, &n.Type, &n.Message, &n.UserID, &n.ProjectID, &n.IsRead, &n.CreatedAt)
	})

	if err != nil {
		if isNoRows(err) {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, err
	}

	return n, nil
}

func (r *NotificationsRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var affected int64

	err := r.prom.ObserveDB("notifications.mark_all_read", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`,
			userID,
		)
		affected = tag.RowsAffected()
		return err
	})

	return affected, err
}

func (r *NotificationsRepo) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64

	err := r.prom.ObserveDB("notifications.unread_count", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`,
			userID,
		).Scan(&n)
	})

	return n, err
}
