package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads audit_logs from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// TimelineWindow returns entries in [FromAt, ToAt) newest first.
func (r *PgRepository) TimelineWindow(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT occurred_at, actor_kind || ':' || actor_id::text, action, entity, entity_id, meta
FROM audit_logs
WHERE occurred_at >= $1 AND occurred_at < $2
  AND ($3 = '' OR actor_kind || ':' || actor_id::text = $3)
  AND ($4 = '' OR entity = $4)
  AND ($5 = '' OR entity_id = $5)
  AND ($6 = '' OR action = $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`, q.FromAt, q.ToAt, q.Actor, q.Entity, q.EntityID, q.Action, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("audit timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if len(meta) > 0 && string(meta) != "null" {
			row.Meta = meta
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
