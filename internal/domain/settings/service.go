package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const msgKeyRequired = "La clave es requerida"

type Service struct {
	repo  Repository
	tx    db.TxRunner
	audit *audit.Logger
}

func NewService(repo Repository, tx db.TxRunner, auditLogger *audit.Logger) *Service {
	return &Service{repo: repo, tx: tx, audit: auditLogger}
}

// All returns the settings keyed by name. Unset values render as null.
func (s *Service) All(ctx context.Context) (map[string]json.RawMessage, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make(map[string]json.RawMessage, len(list))
	for _, st := range list {
		out[st.Key] = orNull(st.Value)
	}
	return out, nil
}

// Set upserts one setting and records the previous value.
func (s *Service) Set(ctx context.Context, actor *auth.Principal, in SetInput) error {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return apperr.BadRequest(msgKeyRequired)
	}
	value := orNull(in.Value)

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old := json.RawMessage("null")
		prev, err := s.repo.Get(ctx, key)
		switch {
		case err == nil:
			old = orNull(prev.Value)
		case !errors.Is(err, ErrNotFound):
			return apperr.Internal(err)
		}

		if err := s.repo.Upsert(ctx, key, value); err != nil {
			return apperr.Internal(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    actorID(actor),
			Action:     audit.ActionUpdateSettings,
			EntityType: audit.EntitySettings,
			EntityID:   key,
			Details:    map[string]any{"key": key, "old": old, "new": value},
		})
		return nil
	})
}

func actorID(p *auth.Principal) *int64 {
	if p == nil {
		return nil
	}
	return &p.UserID
}

func orNull(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}
