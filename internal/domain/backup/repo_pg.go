package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

var errNoTx = errors.New("restore requires a transaction")

type backupRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &backupRepoPG{pool: pool}
}

func (r *backupRepoPG) Export(ctx context.Context) (*Data, error) {
	q := db.Conn(ctx, r.pool)
	data := &Data{Users: []UserRow{}, Specialties: []SpecialtyRow{}, SystemSettings: []SettingRow{}}

	rows, err := q.Query(ctx, `
		SELECT id, email, role, full_name, mpps_number, colegio_number, specialty, rif,
		       is_verified, parent_doctor_id, created_at, updated_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.FullName, &u.MPPSNumber, &u.ColegioNumber,
			&u.Specialty, &u.RIF, &u.IsVerified, &u.ParentDoctorID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		data.Users = append(data.Users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}

	rows, err = q.Query(ctx, `SELECT id, name, description, created_at FROM specialties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("export specialties: %w", err)
	}
	for rows.Next() {
		var s SpecialtyRow
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan specialty row: %w", err)
		}
		data.Specialties = append(data.Specialties, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export specialties: %w", err)
	}

	rows, err = q.Query(ctx, `SELECT key, value, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s   SettingRow
			raw []byte
		)
		if err := rows.Scan(&s.Key, &raw, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		if raw == nil {
			raw = []byte("null")
		}
		s.Value = json.RawMessage(raw)
		data.SystemSettings = append(data.SystemSettings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	return data, nil
}

func (r *backupRepoPG) Restore(ctx context.Context, data *Data) (Counts, error) {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return Counts{}, errNoTx
	}
	var n Counts

	// parent_doctor_id may point at a row later in the snapshot.
	if _, err := tx.Exec(ctx, `SET CONSTRAINTS ALL DEFERRED`); err != nil {
		return n, fmt.Errorf("defer constraints: %w", err)
	}

	for _, u := range data.Users {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, role, full_name, mpps_number, colegio_number, specialty, rif,
				is_verified, parent_doctor_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()), COALESCE($12, NOW()))
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				role = EXCLUDED.role,
				full_name = EXCLUDED.full_name,
				mpps_number = EXCLUDED.mpps_number,
				colegio_number = EXCLUDED.colegio_number,
				specialty = EXCLUDED.specialty,
				rif = EXCLUDED.rif,
				is_verified = EXCLUDED.is_verified,
				parent_doctor_id = EXCLUDED.parent_doctor_id`,
			u.ID, u.Email, u.Role, u.FullName, u.MPPSNumber, u.ColegioNumber, u.Specialty, u.RIF,
			u.IsVerified, u.ParentDoctorID, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return n, mapRestoreErr(fmt.Sprintf("restore user %d", u.ID), err)
		}
		n.Users++
	}

	for _, s := range data.Specialties {
		_, err := tx.Exec(ctx, `
			INSERT INTO specialties (id, name, description, created_at)
			VALUES ($1, $2, $3, COALESCE($4, NOW()))
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`,
			s.ID, s.Name, s.Description, s.CreatedAt)
		if err != nil {
			return n, mapRestoreErr(fmt.Sprintf("restore specialty %d", s.ID), err)
		}
		n.Specialties++
	}

	for _, s := range data.SystemSettings {
		_, err := tx.Exec(ctx, `
			INSERT INTO system_settings (key, value, updated_at)
			VALUES ($1, $2, COALESCE($3, NOW()))
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			s.Key, jsonParam(s.Value), s.UpdatedAt)
		if err != nil {
			return n, mapRestoreErr(fmt.Sprintf("restore setting %q", s.Key), err)
		}
		n.SystemSettings++
	}

	for _, table := range []string{"users", "specialties"} {
		if err := resetSequence(ctx, tx, table); err != nil {
			return n, err
		}
	}

	// Surface deferred FK failures here rather than at commit.
	if _, err := tx.Exec(ctx, `SET CONSTRAINTS ALL IMMEDIATE`); err != nil {
		return n, mapRestoreErr("check constraints", err)
	}
	return n, nil
}

// resetSequence moves the id sequence past the largest restored id.
func resetSequence(ctx context.Context, q db.Querier, table string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
		SELECT setval(pg_get_serial_sequence('%[1]s', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1),
			(SELECT COUNT(*) > 0 FROM %[1]s))`, table))
	if err != nil {
		return fmt.Errorf("reset %s sequence: %w", table, err)
	}
	return nil
}

func mapRestoreErr(op string, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w (%s)", op, ErrConflict, db.ConstraintName(err))
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w (%s)", op, ErrDanglingReference, db.ConstraintName(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func jsonParam(v json.RawMessage) []byte {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}
