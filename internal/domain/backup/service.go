package backup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/validate"
)

const (
	msgDataRequired = "Datos de backup requeridos"
	msgConflict     = "El backup contiene datos en conflicto con registros existentes"
	msgDangling     = "El backup contiene referencias a usuarios inexistentes"
)

// Service exports and restores the administrative tables. The same code
// path serves the HTTP endpoints and the command line.
type Service struct {
	repo      Repository
	tx        db.TxRunner
	audit     *audit.Logger
	logger    zerolog.Logger
	validator *validate.Validator
	now       func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		audit:     auditLogger,
		logger:    logger,
		validator: validate.New(),
		now:       time.Now,
	}
}

// Export snapshots users, specialties and system settings.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	data, err := s.repo.Export(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Snapshot{Timestamp: s.now().UTC(), Data: data}, nil
}

// Restore upserts a snapshot in a single transaction. actorID is nil when
// the restore is not performed by a clinic user.
func (s *Service) Restore(ctx context.Context, actorID *int64, data *Data) (Counts, error) {
	if data == nil {
		return Counts{}, apperr.BadRequest(msgDataRequired)
	}
	if err := s.validator.Validate(data); err != nil {
		return Counts{}, err
	}

	var counts Counts
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.Restore(ctx, data)
		switch {
		case errors.Is(err, ErrConflict):
			return &apperr.Error{Code: apperr.CodeConflict, Message: msgConflict, Err: err}
		case errors.Is(err, ErrDanglingReference):
			return &apperr.Error{Code: apperr.CodeBadRequest, Message: msgDangling, Err: err}
		case err != nil:
			return apperr.Internal(err)
		}
		counts = n

		s.audit.Record(ctx, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionRestoreBackup,
			EntityType: audit.EntityBackup,
			Details:    counts,
		})
		return nil
	})
	if err != nil {
		return Counts{}, err
	}

	s.logger.Info().
		Str("tenant", db.TenantFromContext(ctx)).
		Int("users", counts.Users).
		Int("specialties", counts.Specialties).
		Int("system_settings", counts.SystemSettings).
		Msg("backup restored")
	return counts, nil
}
