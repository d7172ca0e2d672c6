package specialty

// Specialty is a medical specialty offered in the signup and profile forms.
type Specialty struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}
