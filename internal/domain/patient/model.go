package patient

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/patch"
)

const dateLayout = "2006-01-02"

// Patient maps to the patients table.
type Patient struct {
	ID                    int64               `json:"id"`
	Cedula                string              `json:"cedula"`
	FullName              string              `json:"full_name"`
	DateOfBirth           *time.Time          `json:"date_of_birth"`
	Gender                *string             `json:"gender"`
	BloodType             *string             `json:"blood_type"`
	Weight                decimal.NullDecimal `json:"weight"`
	Height                decimal.NullDecimal `json:"height"`
	Phone                 *string             `json:"phone"`
	Email                 *string             `json:"email"`
	Address               *string             `json:"address"`
	EmergencyContactName  *string             `json:"emergency_contact_name"`
	EmergencyContactPhone *string             `json:"emergency_contact_phone"`
	Allergies             *string             `json:"allergies"`
	CreatedBy             *int64              `json:"created_by"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// columnValues keys the mutable columns by name in the form the update
// assigns them: dates as YYYY-MM-DD, measures as canonical decimal strings.
func (p *Patient) columnValues() map[string]any {
	return map[string]any{
		"full_name":               p.FullName,
		"date_of_birth":           dateString(p.DateOfBirth),
		"gender":                  p.Gender,
		"blood_type":              p.BloodType,
		"weight":                  measureString(p.Weight),
		"height":                  measureString(p.Height),
		"phone":                   p.Phone,
		"email":                   p.Email,
		"address":                 p.Address,
		"emergency_contact_name":  p.EmergencyContactName,
		"emergency_contact_phone": p.EmergencyContactPhone,
		"allergies":               p.Allergies,
	}
}

// AuditFields keys the mutable columns by API name.
func (p *Patient) AuditFields() map[string]any {
	return map[string]any{
		"fullName":              p.FullName,
		"dateOfBirth":           dateString(p.DateOfBirth),
		"gender":                p.Gender,
		"bloodType":             p.BloodType,
		"weight":                measureString(p.Weight),
		"height":                measureString(p.Height),
		"phone":                 p.Phone,
		"email":                 p.Email,
		"address":               p.Address,
		"emergencyContactName":  p.EmergencyContactName,
		"emergencyContactPhone": p.EmergencyContactPhone,
		"allergies":             p.Allergies,
	}
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func measureString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// Measure is a clinical measurement sent as a JSON number or numeric
// string. A blank string carries no value.
type Measure struct {
	decimal.NullDecimal
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`""`)) || bytes.Equal(data, []byte("null")) {
		m.Valid = false
		return nil
	}
	if err := m.Decimal.UnmarshalJSON(data); err != nil {
		return err
	}
	m.Valid = true
	return nil
}

// Input is the create and edit form. Cedula is ignored on edit.
type Input struct {
	Cedula                patch.Field[string]  `json:"cedula"`
	FullName              patch.Field[string]  `json:"fullName"`
	DateOfBirth           patch.Field[string]  `json:"dateOfBirth"`
	Gender                patch.Field[string]  `json:"gender"`
	BloodType             patch.Field[string]  `json:"bloodType"`
	Weight                patch.Field[Measure] `json:"weight"`
	Height                patch.Field[Measure] `json:"height"`
	Phone                 patch.Field[string]  `json:"phone"`
	Email                 patch.Field[string]  `json:"email"`
	Address               patch.Field[string]  `json:"address"`
	EmergencyContactName  patch.Field[string]  `json:"emergencyContactName"`
	EmergencyContactPhone patch.Field[string]  `json:"emergencyContactPhone"`
	Allergies             patch.Field[string]  `json:"allergies"`
}

// ListParams narrows List. Search matches cedula or name.
type ListParams struct {
	Search string
	Limit  int
	Offset int
}
