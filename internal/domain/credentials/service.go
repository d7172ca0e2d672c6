package credentials

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/security"
)

const MinPasswordLength = 6

const (
	msgBothRequired  = "Se requieren la contraseña actual y la nueva"
	msgTooShort      = "La nueva contraseña debe tener al menos 6 caracteres"
	msgNoAccount     = "Cuenta no encontrada o sin acceso por contraseña"
	msgWrongPassword = "La contraseña actual es incorrecta"
)

type Service struct {
	repo        Repository
	tx          db.TxRunner
	audit       *audit.Logger
	revocations auth.RevocationStore
	logger      zerolog.Logger
	params      security.Params
	now         func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, auditLogger *audit.Logger, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		tx:          tx,
		audit:       auditLogger,
		revocations: revocations,
		logger:      logger,
		params:      security.DefaultParams,
		now:         time.Now,
	}
}

// ChangePassword replaces the caller's credentials password and revokes the
// sessions issued before the change.
func (s *Service) ChangePassword(ctx context.Context, id *auth.Identity, actor *auth.Principal, in ChangePasswordInput) error {
	if in.CurrentPassword == "" || in.NewPassword == "" {
		return apperr.BadRequest(msgBothRequired)
	}
	if utf8.RuneCountInString(in.NewPassword) < MinPasswordLength {
		return apperr.BadRequest(msgTooShort)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		acct, err := s.repo.FindByEmail(ctx, auth.NormalizeEmail(id.Email))
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(msgNoAccount)
		}
		if err != nil {
			return apperr.Internal(err)
		}

		ok, err := security.VerifyPassword(in.CurrentPassword, acct.PasswordHash)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			return apperr.BadRequest(msgWrongPassword)
		}

		hash, err := security.HashPassword(in.NewPassword, s.params)
		if err != nil {
			return apperr.Internal(err)
		}
		if err := s.repo.UpdatePassword(ctx, acct.UserID, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.NotFound(msgNoAccount)
			}
			return apperr.Internal(err)
		}

		var actorID *int64
		if actor != nil {
			actorID = &actor.UserID
		}
		s.audit.Record(ctx, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionChangePassword,
			EntityType: audit.EntityAccount,
			EntityID:   acct.UserID,
			Details:    map[string]any{"email": acct.Email},
		})
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.revocations.RevokeBefore(ctx, id.ID, s.now()); err != nil {
		s.logger.Error().Err(err).Str("subject", id.ID).Msg("failed to revoke sessions after password change")
	}
	s.logger.Info().Str("tenant", db.TenantFromContext(ctx)).Str("email", id.Email).Msg("password changed")
	return nil
}
