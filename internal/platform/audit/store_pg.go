package audit

import (
	"context"
	"fmt"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// Insert writes e. Inside a transaction the insert runs in a savepoint, so a
// failure rolls back only the entry and the caller's mutation can commit.
func (s *pgStore) Insert(ctx context.Context, e *Entry) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return insertEntry(ctx, db.Conn(ctx, s.pool), e)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit savepoint: %w", err)
	}
	if err := insertEntry(ctx, sp, e); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, q db.Querier, e *Entry) error {
	var details []byte
	if len(e.Details) > 0 {
		details = e.Details
	}
	err := q.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.UserID, string(e.Action), e.EntityType, e.EntityID, details, e.IPAddress, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, f Filter) ([]*EntryView, error) {
	query := `
		SELECT al.id, al.user_id, al.action, al.entity_type, al.entity_id, al.details,
			al.ip_address, al.created_at, u.full_name, u.email, u.role
		FROM audit_logs al
		LEFT JOIN users u ON al.user_id = u.id`
	var args []any
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		query += ` WHERE al.entity_type = $1`
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY al.created_at DESC, al.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	views := []*EntryView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanView(rows pgx.Rows) (*EntryView, error) {
	var (
		v      EntryView
		action string
	)
	err := rows.Scan(
		&v.ID, &v.UserID, &action, &v.EntityType, &v.EntityID, &v.Details,
		&v.IPAddress, &v.CreatedAt, &v.FullName, &v.Email, &v.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	v.Action = Action(action)
	v.ActorName = SystemActor
	if v.FullName != nil {
		v.ActorName = *v.FullName
	}
	return &v, nil
}
