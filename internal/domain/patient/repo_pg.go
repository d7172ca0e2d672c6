package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/patch"
)

const patientColumns = `id, cedula, full_name, date_of_birth, gender, blood_type, weight, height,
	phone, email, address, emergency_contact_name, emergency_contact_phone, allergies,
	created_by, created_at, updated_at`

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (
			cedula, full_name, date_of_birth, gender, blood_type, weight, height,
			phone, email, address, emergency_contact_name, emergency_contact_phone,
			allergies, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`,
		p.Cedula, p.FullName, dateString(p.DateOfBirth), p.Gender, p.BloodType,
		measureString(p.Weight), measureString(p.Height),
		p.Phone, p.Email, p.Address, p.EmergencyContactName, p.EmergencyContactPhone,
		p.Allergies, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrDuplicateCedula
	case db.IsDataException(err):
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return fmt.Errorf("create patient: %w", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, params ListParams) ([]*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients`
	var args []any
	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		query += ` WHERE (cedula ILIKE $1 OR full_name ILIKE $1)`
	}
	args = append(args, params.Limit, params.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	list := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *patientRepoPG) Update(ctx context.Context, id int64, u *patch.Update) (*Patient, error) {
	sql, args, err := u.Build("id", id, patientColumns)
	if err != nil {
		return nil, err
	}
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...))
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrNotFound):
		return nil, err
	case db.IsUniqueViolation(err):
		return nil, ErrDuplicateCedula
	case db.IsDataException(err):
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return nil, fmt.Errorf("update patient: %w", err)
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Cedula, &p.FullName, &p.DateOfBirth, &p.Gender, &p.BloodType, &p.Weight, &p.Height,
		&p.Phone, &p.Email, &p.Address, &p.EmergencyContactName, &p.EmergencyContactPhone, &p.Allergies,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}
