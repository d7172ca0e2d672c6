package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/patch"
)

const userColumns = `id, email, role, full_name, mpps_number, colegio_number, specialty, rif,
	is_verified, parent_doctor_id, created_at, updated_at`

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, email))
}

func (r *userRepoPG) List(ctx context.Context, f Filter) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	idx := 1

	if f.Role != "" && f.Role != "all" {
		query += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(` AND (full_name ILIKE $%d OR email ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Search+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	list := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (
			email, role, full_name, mpps_number, colegio_number, specialty, rif,
			is_verified, parent_doctor_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		u.Email, string(u.Role), u.FullName, u.MPPSNumber, u.ColegioNumber, u.Specialty, u.RIF,
		u.IsVerified, u.ParentDoctorID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return mapWriteErr("create user", err)
}

func (r *userRepoPG) Update(ctx context.Context, id int64, u *patch.Update) (*User, error) {
	sql, args, err := u.Build("id", id, userColumns)
	if err != nil {
		return nil, err
	}
	updated, err := scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, mapWriteErr("update user", err)
	}
	return updated, nil
}

func (r *userRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	counts := make(map[Role]int, len(Roles))
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		counts[Role(role)] = n
	}
	return counts, rows.Err()
}

func (r *userRepoPG) AuthEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.auth_users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check auth email: %w", err)
	}
	return exists, nil
}

func (r *userRepoPG) LockBootstrap(ctx context.Context) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext(current_schema() || ':superuser_bootstrap'))`)
	if err != nil {
		return fmt.Errorf("lock superuser bootstrap: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Email, &role, &u.FullName, &u.MPPSNumber, &u.ColegioNumber, &u.Specialty, &u.RIF,
		&u.IsVerified, &u.ParentDoctorID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

func mapWriteErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrConflict
	case db.IsForeignKeyViolation(err):
		return ErrParentNotFound
	case db.IsDataException(err):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidValue, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
