package patient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/patch"
)

const (
	msgRequired     = "Cédula y nombre son requeridos"
	msgDuplicate    = "Ya existe un paciente con esta cédula"
	msgNotFound     = "Paciente no encontrado"
	msgNoProfile    = "Usuario no encontrado"
	msgNothingToSet = "No hay campos para actualizar"
	msgInvalidDate  = "Fecha de nacimiento inválida"
	msgNegative     = "Peso y altura deben ser valores positivos"
	msgMeasureRange = "Peso y altura deben ser menores a 10000"
	msgInvalidValue = "Uno o más campos tienen un valor inválido"
	msgTooLong      = "El campo %s no puede exceder %d caracteres"
)

// Widths of the patients columns, in characters. NUMERIC(6,2) measures
// hold values below maxMeasure.
const (
	maxCedula = 32
	maxName   = 255
	maxGender = 32
	maxBlood  = 8
	maxPhone  = 64
	maxEmail  = 255
)

var maxMeasure = decimal.New(10000, 0)

type Service struct {
	repo     Repository
	profiles auth.PrincipalLookup
	tx       db.TxRunner
	audit    *audit.Logger
}

func NewService(repo Repository, profiles auth.PrincipalLookup, tx db.TxRunner, auditLogger *audit.Logger) *Service {
	return &Service{repo: repo, profiles: profiles, tx: tx, audit: auditLogger}
}

// Create registers a patient on behalf of the caller, who must have a
// clinic profile.
func (s *Service) Create(ctx context.Context, id *auth.Identity, in Input) (*Patient, error) {
	cedula := strings.TrimSpace(in.Cedula.Value)
	name := strings.TrimSpace(in.FullName.Value)
	if cedula == "" || name == "" {
		return nil, apperr.BadRequest(msgRequired)
	}
	if utf8.RuneCountInString(cedula) > maxCedula {
		return nil, apperr.BadRequest(fmt.Sprintf(msgTooLong, "cedula", maxCedula))
	}
	if err := checkLimits(in); err != nil {
		return nil, err
	}

	p := &Patient{
		Cedula:                cedula,
		FullName:              name,
		Gender:                text(in.Gender),
		BloodType:             text(in.BloodType),
		Phone:                 text(in.Phone),
		Email:                 text(in.Email),
		Address:               text(in.Address),
		EmergencyContactName:  text(in.EmergencyContactName),
		EmergencyContactPhone: text(in.EmergencyContactPhone),
		Allergies:             text(in.Allergies),
	}
	if in.DateOfBirth.Present() {
		dob, err := parseDate(in.DateOfBirth.Value)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = dob
	}
	if in.Weight.Present() {
		p.Weight = in.Weight.Value.NullDecimal
	}
	if in.Height.Present() {
		p.Height = in.Height.Value.NullDecimal
	}
	if negative(p.Weight) || negative(p.Height) {
		return nil, apperr.BadRequest(msgNegative)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		actor, err := s.profiles.LookupPrincipal(ctx, auth.NormalizeEmail(id.Email))
		if errors.Is(err, auth.ErrNoPrincipal) {
			return apperr.NotFound(msgNoProfile)
		}
		if err != nil {
			return apperr.Internal(err)
		}
		p.CreatedBy = &actor.UserID

		if err := s.repo.Create(ctx, p); err != nil {
			return mapWriteErr(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    &actor.UserID,
			Action:     audit.ActionCreatePatient,
			EntityType: audit.EntityPatients,
			EntityID:   strconv.FormatInt(p.ID, 10),
			Details:    map[string]any{"cedula": p.Cedula, "fullName": p.FullName},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// List returns patients newest first.
func (s *Service) List(ctx context.Context, params ListParams) ([]*Patient, error) {
	params.Search = strings.TrimSpace(params.Search)
	list, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Update applies a partial edit. Blank optional fields are cleared.
func (s *Service) Update(ctx context.Context, id *auth.Identity, patientID int64, in Input) (*Patient, error) {
	if err := checkLimits(in); err != nil {
		return nil, err
	}

	upd := patch.New("patients")
	patch.String(upd, "full_name", in.FullName, patch.Required)
	if err := setDate(upd, in.DateOfBirth); err != nil {
		return nil, err
	}
	patch.String(upd, "gender", in.Gender, patch.Clearable)
	patch.String(upd, "blood_type", in.BloodType, patch.Clearable)
	if err := setMeasure(upd, "weight", in.Weight); err != nil {
		return nil, err
	}
	if err := setMeasure(upd, "height", in.Height); err != nil {
		return nil, err
	}
	patch.String(upd, "phone", in.Phone, patch.Clearable)
	patch.String(upd, "email", in.Email, patch.Clearable)
	patch.String(upd, "address", in.Address, patch.Clearable)
	patch.String(upd, "emergency_contact_name", in.EmergencyContactName, patch.Clearable)
	patch.String(upd, "emergency_contact_phone", in.EmergencyContactPhone, patch.Clearable)
	patch.String(upd, "allergies", in.Allergies, patch.Clearable)

	if upd.Empty() {
		return nil, apperr.BadRequest(msgNothingToSet)
	}

	var result *Patient
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetByID(ctx, patientID)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(msgNotFound)
		}
		if err != nil {
			return apperr.Internal(err)
		}

		upd.DropUnchanged(old.columnValues())
		if upd.Empty() {
			result = old
			return nil
		}

		updated, err := s.repo.Update(ctx, patientID, upd)
		if err != nil {
			return mapWriteErr(err)
		}

		s.audit.Record(ctx, audit.Event{
			ActorID:    s.actorID(ctx, id),
			Action:     audit.ActionUpdatePatient,
			EntityType: audit.EntityPatients,
			EntityID:   strconv.FormatInt(patientID, 10),
			Details: map[string]any{
				"targetName": old.FullName,
				"cedula":     old.Cedula,
				"changes":    audit.Diff(old.AuditFields(), updated.AuditFields()),
			},
		})
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// actorID resolves the editor's profile id. Staff without a profile are
// recorded as the system.
func (s *Service) actorID(ctx context.Context, id *auth.Identity) *int64 {
	if id == nil {
		return nil
	}
	p, err := s.profiles.LookupPrincipal(ctx, auth.NormalizeEmail(id.Email))
	if err != nil {
		return nil
	}
	return &p.UserID
}

func mapWriteErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(msgNotFound)
	case errors.Is(err, ErrDuplicateCedula):
		return apperr.Conflict(msgDuplicate)
	case errors.Is(err, ErrInvalidValue):
		return &apperr.Error{Code: apperr.CodeBadRequest, Message: msgInvalidValue, Err: err}
	}
	return apperr.Internal(err)
}

// checkLimits rejects submitted values the patients columns cannot hold.
// Cedula is checked by Create only, since edits ignore it.
func checkLimits(in Input) error {
	texts := []struct {
		name string
		max  int
		f    patch.Field[string]
	}{
		{"fullName", maxName, in.FullName},
		{"gender", maxGender, in.Gender},
		{"bloodType", maxBlood, in.BloodType},
		{"phone", maxPhone, in.Phone},
		{"email", maxEmail, in.Email},
		{"emergencyContactName", maxName, in.EmergencyContactName},
		{"emergencyContactPhone", maxPhone, in.EmergencyContactPhone},
	}
	for _, t := range texts {
		if t.f.Present() && utf8.RuneCountInString(strings.TrimSpace(t.f.Value)) > t.max {
			return apperr.BadRequest(fmt.Sprintf(msgTooLong, t.name, t.max))
		}
	}
	for _, m := range []patch.Field[Measure]{in.Weight, in.Height} {
		if m.Present() && m.Value.Valid && m.Value.Decimal.Round(2).Abs().GreaterThanOrEqual(maxMeasure) {
			return apperr.BadRequest(msgMeasureRange)
		}
	}
	return nil
}

func text(f patch.Field[string]) *string {
	if !f.Present() {
		return nil
	}
	v := strings.TrimSpace(f.Value)
	if v == "" {
		return nil
	}
	return &v
}

// parseDate accepts YYYY-MM-DD or a full timestamp; blanks mean no date.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, apperr.BadRequest(msgInvalidDate)
	}
	return &t, nil
}

func setDate(u *patch.Update, f patch.Field[string]) error {
	if !f.Set {
		return nil
	}
	if f.Null {
		u.Set("date_of_birth", nil)
		return nil
	}
	t, err := parseDate(f.Value)
	if err != nil {
		return err
	}
	if t == nil {
		u.Set("date_of_birth", nil)
		return nil
	}
	u.Set("date_of_birth", t.Format(dateLayout))
	return nil
}

func setMeasure(u *patch.Update, column string, f patch.Field[Measure]) error {
	if !f.Set {
		return nil
	}
	if f.Null || !f.Value.Valid {
		u.Set(column, nil)
		return nil
	}
	if negative(f.Value.NullDecimal) {
		return apperr.BadRequest(msgNegative)
	}
	u.Set(column, f.Value.Decimal.String())
	return nil
}

func negative(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsNegative()
}
