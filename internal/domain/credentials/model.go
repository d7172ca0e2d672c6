package credentials

// Account is the password-bearing login of an auth user.
type Account struct {
	UserID       string
	Email        string
	PasswordHash string
}

// ChangePasswordInput is the change-password form. Secrets never leave this
// struct: it has no JSON encoding.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
