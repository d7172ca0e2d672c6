package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/patch"
)

const (
	msgUserNotFound   = "Usuario no encontrado"
	msgUserExists     = "Este usuario ya existe"
	msgEmailTaken     = "Este email ya está registrado en el sistema"
	msgInvalidRole    = "Rol inválido"
	msgNothingToSave  = "No hay campos para actualizar"
	msgNoChanges      = "No se detectaron cambios"
	msgSelfDelete     = "No puede eliminar su propia cuenta de SuperUsuario"
	msgParentMissing  = "El médico asignado no existe"
	msgSelfParent     = "Un usuario no puede ser su propio médico asignado"
	msgBootstrapTaken = "Ya existe un SuperUsuario en el sistema"
	msgInvalidValue   = "Uno o más campos tienen un valor inválido"
)

const downgradeReason = "superuser role cannot be downgraded"

type Service struct {
	repo   Repository
	tx     db.TxRunner
	audit  *audit.Logger
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, audit: auditLogger, logger: logger}
}

// BootstrapState answers whether the first superuser has been created.
func (s *Service) BootstrapState(ctx context.Context) (BootstrapState, error) {
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return BootstrapState{}, apperr.Internal(err)
	}
	n := counts[RoleSuperuser]
	return BootstrapState{Exists: n > 0, Count: n}, nil
}

// LookupPrincipal implements auth.PrincipalLookup.
func (s *Service) LookupPrincipal(ctx context.Context, email string) (*auth.Principal, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrNoPrincipal
	}
	if err != nil {
		return nil, err
	}
	return &auth.Principal{UserID: u.ID, Email: u.Email, Role: string(u.Role), FullName: u.FullName}, nil
}

// Profile returns the caller's profile, or nil when onboarding is pending.
func (s *Service) Profile(ctx context.Context, id *auth.Identity) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, auth.NormalizeEmail(id.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// SaveProfile creates the caller's profile or updates it. An existing
// superuser cannot be downgraded here, and the superuser role can only be
// claimed while none exists.
func (s *Service) SaveProfile(ctx context.Context, id *auth.Identity, in ProfileInput) (*User, error) {
	email := auth.NormalizeEmail(id.Email)

	var role Role
	if in.Role.Present() {
		role = Role(strings.TrimSpace(in.Role.Value))
		if role != "" && !role.Valid() {
			return nil, apperr.BadRequest(msgInvalidRole)
		}
	}

	var saved *User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return apperr.Internal(err)
		}

		if role == RoleSuperuser && (existing == nil || existing.Role != RoleSuperuser) {
			if err := s.claimBootstrap(ctx); err != nil {
				return err
			}
		}

		if existing == nil {
			saved, err = s.createProfile(ctx, id, email, role, in)
			return err
		}
		saved, err = s.updateProfile(ctx, existing, role, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) claimBootstrap(ctx context.Context) error {
	if err := s.repo.LockBootstrap(ctx); err != nil {
		return apperr.Internal(err)
	}
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return apperr.Internal(err)
	}
	if counts[RoleSuperuser] > 0 {
		return apperr.Forbidden(msgBootstrapTaken)
	}
	return nil
}

func (s *Service) createProfile(ctx context.Context, id *auth.Identity, email string, role Role, in ProfileInput) (*User, error) {
	if role == "" {
		role = RoleDoctor
	}
	name := strings.TrimSpace(in.FullName.Value)
	if name == "" {
		name = strings.TrimSpace(id.Name)
	}

	u := &User{
		Email:         email,
		Role:          role,
		FullName:      name,
		MPPSNumber:    optionalField(in.MPPSNumber),
		ColegioNumber: optionalField(in.ColegioNumber),
		Specialty:     optionalField(in.Specialty),
		RIF:           optionalField(in.RIF),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("profile created")
	return u, nil
}

func (s *Service) updateProfile(ctx context.Context, existing *User, role Role, in ProfileInput) (*User, error) {
	upd := patch.New("users")
	patch.String(upd, "full_name", in.FullName, patch.Required)
	if role != "" {
		if existing.Role == RoleSuperuser && role != RoleSuperuser {
			upd.Exclude("role", downgradeReason)
		} else {
			upd.Set("role", string(role))
		}
	}
	patch.String(upd, "mpps_number", in.MPPSNumber, patch.Optional)
	patch.String(upd, "colegio_number", in.ColegioNumber, patch.Optional)
	patch.String(upd, "specialty", in.Specialty, patch.Optional)
	patch.String(upd, "rif", in.RIF, patch.Optional)
	s.warnExcluded(upd, existing.Email, "blocked superuser role downgrade from profile")

	updated, err := s.repo.Update(ctx, existing.ID, upd)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return updated, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*User, error) {
	f.Search = strings.TrimSpace(f.Search)
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Create adds a profile on behalf of a superuser. The email must be unknown
// both to the session provider and to the clinic.
func (s *Service) Create(ctx context.Context, actor *auth.Principal, in CreateUserInput) (*User, error) {
	email := auth.NormalizeEmail(in.Email)
	u := &User{
		Email:          email,
		Role:           in.Role,
		FullName:       strings.TrimSpace(in.FullName),
		MPPSNumber:     optional(in.MPPSNumber),
		ColegioNumber:  optional(in.ColegioNumber),
		Specialty:      optional(in.Specialty),
		RIF:            optional(in.RIF),
		ParentDoctorID: in.ParentDoctorID,
	}
	if u.FullName == "" {
		return nil, apperr.BadRequest("Email, rol y nombre son requeridos")
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		taken, err := s.repo.AuthEmailExists(ctx, email)
		if err != nil {
			return apperr.Internal(err)
		}
		if taken {
			return apperr.Conflict(msgEmailTaken)
		}
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return apperr.Conflict(msgUserExists)
		} else if !errors.Is(err, ErrNotFound) {
			return apperr.Internal(err)
		}

		if err := s.repo.Create(ctx, u); err != nil {
			return mapRepoErr(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    &actor.UserID,
			Action:     audit.ActionCreateUser,
			EntityType: audit.EntityUsers,
			EntityID:   strconv.FormatInt(u.ID, 10),
			Details: map[string]any{
				"email":      u.Email,
				"role":       u.Role,
				"fullName":   u.FullName,
				"targetName": u.FullName,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Update applies a superuser edit. It reports false, with the stored row,
// when nothing differs from what is stored.
func (s *Service) Update(ctx context.Context, actor *auth.Principal, id int64, in UpdateUserInput) (*User, bool, error) {
	if in.Role.Present() && !Role(strings.TrimSpace(in.Role.Value)).Valid() {
		return nil, false, apperr.BadRequest(msgInvalidRole)
	}
	if in.ParentDoctorID.Present() && in.ParentDoctorID.Value == id {
		return nil, false, apperr.BadRequest(msgSelfParent)
	}

	var (
		result  *User
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(msgUserNotFound)
		}
		if err != nil {
			return apperr.Internal(err)
		}

		upd := patch.New("users")
		patch.String(upd, "full_name", in.FullName, patch.Required)
		patch.String(upd, "role", in.Role, patch.Required)
		patch.String(upd, "mpps_number", in.MPPSNumber, patch.Optional)
		patch.String(upd, "colegio_number", in.ColegioNumber, patch.Optional)
		patch.String(upd, "specialty", in.Specialty, patch.Optional)
		patch.String(upd, "rif", in.RIF, patch.Optional)
		patch.Any(upd, "is_verified", in.IsVerified, patch.Required)
		patch.Any(upd, "parent_doctor_id", in.ParentDoctorID, patch.Optional)

		if v, ok := upd.Value("role"); ok && old.ID == actor.UserID && old.Role == RoleSuperuser && v != string(RoleSuperuser) {
			upd.Exclude("role", downgradeReason)
			s.warnExcluded(upd, old.Email, "blocked self downgrade of superuser role")
		}

		upd.DropUnchanged(old.columnValues())
		if upd.Empty() {
			result = old
			return nil
		}

		updated, err := s.repo.Update(ctx, id, upd)
		if err != nil {
			return mapRepoErr(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    &actor.UserID,
			Action:     audit.ActionUpdateUser,
			EntityType: audit.EntityUsers,
			EntityID:   strconv.FormatInt(id, 10),
			Details: map[string]any{
				"targetName": old.FullName,
				"changes":    audit.Diff(old.AuditFields(), updated.AuditFields()),
			},
		})
		s.logger.Info().Int64("user_id", id).Strs("columns", upd.Columns()).Msg("user updated")
		result, changed = updated, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// Delete removes a profile. A superuser cannot delete their own account.
func (s *Service) Delete(ctx context.Context, actor *auth.Principal, id int64) error {
	if id == actor.UserID {
		return apperr.BadRequest(msgSelfDelete)
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		target, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(msgUserNotFound)
		}
		if err != nil {
			return apperr.Internal(err)
		}

		if err := s.repo.Delete(ctx, id); err != nil {
			return mapRepoErr(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    &actor.UserID,
			Action:     audit.ActionDeleteUser,
			EntityType: audit.EntityUsers,
			EntityID:   strconv.FormatInt(id, 10),
			Details:    target,
		})
		return nil
	})
}

// CountByRole returns a count for every role, zero included.
func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	out := make(map[Role]int, len(Roles))
	for _, r := range Roles {
		out[r] = counts[r]
	}
	return out, nil
}

// warnExcluded logs every column a guard kept out of upd.
func (s *Service) warnExcluded(upd *patch.Update, target, msg string) {
	for _, ex := range upd.Excluded() {
		s.logger.Warn().
			Str("target", target).
			Str("column", ex.Column).
			Str("reason", ex.Reason).
			Msg(msg)
	}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(msgUserNotFound)
	case errors.Is(err, ErrConflict):
		return apperr.Conflict(msgUserExists)
	case errors.Is(err, ErrParentNotFound):
		return apperr.BadRequest(msgParentMissing)
	case errors.Is(err, patch.ErrNoOp):
		return apperr.BadRequest(msgNothingToSave)
	case errors.Is(err, ErrInvalidValue):
		return &apperr.Error{Code: apperr.CodeBadRequest, Message: msgInvalidValue, Err: err}
	}
	return apperr.Internal(err)
}

func optionalField(f patch.Field[string]) *string {
	if !f.Present() {
		return nil
	}
	return optional(&f.Value)
}
