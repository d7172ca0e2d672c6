package users

import (
	"strings"
	"time"

	"github.com/clinic/clinic/internal/platform/patch"
)

type Role string

const (
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleAdministrator Role = "administrator"
	RoleSuperuser     Role = "superuser"
)

// Roles lists every role in display order.
var Roles = []Role{RoleDoctor, RoleNurse, RoleAdministrator, RoleSuperuser}

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RoleNurse, RoleAdministrator, RoleSuperuser:
		return true
	}
	return false
}

// User maps to the users table. It is also the public projection returned
// by every endpoint.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	FullName       string    `json:"full_name"`
	MPPSNumber     *string   `json:"mpps_number"`
	ColegioNumber  *string   `json:"colegio_number"`
	Specialty      *string   `json:"specialty"`
	RIF            *string   `json:"rif"`
	IsVerified     bool      `json:"is_verified"`
	ParentDoctorID *int64    `json:"parent_doctor_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// columnValues keys the mutable columns by name, in the form the patch
// builder assigns them.
func (u *User) columnValues() map[string]any {
	return map[string]any{
		"email":            u.Email,
		"role":             string(u.Role),
		"full_name":        u.FullName,
		"mpps_number":      u.MPPSNumber,
		"colegio_number":   u.ColegioNumber,
		"specialty":        u.Specialty,
		"rif":              u.RIF,
		"is_verified":      u.IsVerified,
		"parent_doctor_id": u.ParentDoctorID,
	}
}

// AuditFields keys the mutable columns by their API name for update diffs.
func (u *User) AuditFields() map[string]any {
	return map[string]any{
		"email":          u.Email,
		"role":           string(u.Role),
		"fullName":       u.FullName,
		"mppsNumber":     u.MPPSNumber,
		"colegioNumber":  u.ColegioNumber,
		"specialty":      u.Specialty,
		"rif":            u.RIF,
		"isVerified":     u.IsVerified,
		"parentDoctorId": u.ParentDoctorID,
	}
}

// Filter narrows List. Role "all" or empty matches every role.
type Filter struct {
	Role   string
	Search string
}

// BootstrapState is the first-run gate: Exists flips once the first
// superuser profile is written.
type BootstrapState struct {
	Exists bool `json:"exists"`
	Count  int  `json:"count"`
}

// ProfileInput is the self-service onboarding form.
type ProfileInput struct {
	Role          patch.Field[string] `json:"role"`
	FullName      patch.Field[string] `json:"fullName"`
	MPPSNumber    patch.Field[string] `json:"mppsNumber"`
	ColegioNumber patch.Field[string] `json:"colegioNumber"`
	Specialty     patch.Field[string] `json:"specialty"`
	RIF           patch.Field[string] `json:"rif"`
}

// CreateUserInput is the superuser "new user" form.
type CreateUserInput struct {
	Email          string  `json:"email" validate:"required,email"`
	Role           Role    `json:"role" validate:"required,oneof=doctor nurse administrator superuser"`
	FullName       string  `json:"fullName" validate:"required"`
	MPPSNumber     *string `json:"mppsNumber"`
	ColegioNumber  *string `json:"colegioNumber"`
	Specialty      *string `json:"specialty"`
	RIF            *string `json:"rif"`
	ParentDoctorID *int64  `json:"parent_doctor_id" validate:"omitempty,gt=0"`
}

// UpdateUserInput is the superuser edit form. Absent fields are left alone.
type UpdateUserInput struct {
	FullName       patch.Field[string] `json:"fullName"`
	Role           patch.Field[string] `json:"role"`
	MPPSNumber     patch.Field[string] `json:"mppsNumber"`
	ColegioNumber  patch.Field[string] `json:"colegioNumber"`
	Specialty      patch.Field[string] `json:"specialty"`
	RIF            patch.Field[string] `json:"rif"`
	IsVerified     patch.Field[bool]   `json:"isVerified"`
	ParentDoctorID patch.Field[int64]  `json:"parent_doctor_id"`
}

// optional trims s and maps blanks to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
