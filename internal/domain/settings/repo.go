package settings

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("setting not found")

type Repository interface {
	List(ctx context.Context) ([]*Setting, error)
	Get(ctx context.Context, key string) (*Setting, error)
	// Upsert writes value under key and bumps updated_at.
	Upsert(ctx context.Context, key string, value json.RawMessage) error
}
