package backup

import (
	"encoding/json"
	"time"
)

// Snapshot is the export format. Rows keep their database column names so a
// snapshot restores into the same tables it came from.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Data      *Data     `json:"data"`
}

type Data struct {
	Users          []UserRow      `json:"users" validate:"dive"`
	Specialties    []SpecialtyRow `json:"specialties" validate:"dive"`
	SystemSettings []SettingRow   `json:"system_settings" validate:"dive"`
}

type UserRow struct {
	ID             int64      `json:"id" validate:"gt=0"`
	Email          string     `json:"email" validate:"required,email"`
	Role           string     `json:"role" validate:"oneof=doctor nurse administrator superuser"`
	FullName       string     `json:"full_name" validate:"required"`
	MPPSNumber     *string    `json:"mpps_number"`
	ColegioNumber  *string    `json:"colegio_number"`
	Specialty      *string    `json:"specialty"`
	RIF            *string    `json:"rif"`
	IsVerified     bool       `json:"is_verified"`
	ParentDoctorID *int64     `json:"parent_doctor_id"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

type SpecialtyRow struct {
	ID          int64      `json:"id" validate:"gt=0"`
	Name        string     `json:"name" validate:"required"`
	Description *string    `json:"description"`
	CreatedAt   *time.Time `json:"created_at"`
}

type SettingRow struct {
	Key       string          `json:"key" validate:"required"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt *time.Time      `json:"updated_at"`
}

// Counts reports how many rows of each table a restore wrote.
type Counts struct {
	Users          int `json:"users"`
	Specialties    int `json:"specialties"`
	SystemSettings int `json:"system_settings"`
}

// RestoreInput is the restore request body.
type RestoreInput struct {
	Data *Data `json:"data"`
}
