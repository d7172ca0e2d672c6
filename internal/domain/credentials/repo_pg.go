package credentials

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

const providerCredentials = "credentials"

// The session provider's tables live in the public schema, which clinic
// schemas must not shadow.
type credentialsRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &credentialsRepoPG{pool: pool}
}

func (r *credentialsRepoPG) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var (
		a    Account
		hash *string
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT u.id, u.email, a.password
		FROM public.auth_users u
		JOIN public.auth_accounts a ON a."userId" = u.id
		WHERE LOWER(u.email) = LOWER($1) AND a.provider = $2
		LIMIT 1`, email, providerCredentials,
	).Scan(&a.UserID, &a.Email, &hash)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	if hash == nil {
		return nil, ErrNotFound
	}
	a.PasswordHash = *hash
	return &a, nil
}

func (r *credentialsRepoPG) UpdatePassword(ctx context.Context, userID, hash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE public.auth_accounts SET password = $1 WHERE "userId" = $2 AND provider = $3`,
		hash, userID, providerCredentials)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
