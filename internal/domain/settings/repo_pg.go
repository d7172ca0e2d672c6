package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type settingsRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &settingsRepoPG{pool: pool}
}

func (r *settingsRepoPG) List(ctx context.Context) ([]*Setting, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT key, value, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	list := []*Setting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *settingsRepoPG) Get(ctx context.Context, key string) (*Setting, error) {
	s, err := scanSetting(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT key, value, updated_at FROM system_settings WHERE key = $1`, key))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *settingsRepoPG) Upsert(ctx context.Context, key string, value json.RawMessage) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, jsonParam(value))
	if err != nil {
		return fmt.Errorf("upsert setting %q: %w", key, err)
	}
	return nil
}

func scanSetting(row pgx.Row) (*Setting, error) {
	var (
		s   Setting
		raw []byte
	)
	if err := row.Scan(&s.Key, &raw, &s.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan setting: %w", err)
	}
	if raw != nil {
		s.Value = json.RawMessage(raw)
	}
	return &s, nil
}

// jsonParam sends JSON null as SQL NULL.
func jsonParam(v json.RawMessage) []byte {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}
