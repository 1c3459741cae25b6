package account

import "errors"

var (
	// ErrInvalidCredentials is returned for any failed login. It never says
	// whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUserExists is returned when the username is taken (any case).
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned when the username does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrProtectedAccount is returned when deleting the admin account.
	ErrProtectedAccount = errors.New("account is protected")

	// ErrInvalidRole is returned for roles other than admin/user.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidUsername is returned for empty usernames.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrWeakPassword is returned when a password is shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")

	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLength bytes.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrSessionNotFound is returned for unknown tokens.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")
)

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidUsername) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrPasswordTooLong)
}

// IsUnauthenticated returns true if the caller has no valid session or credentials.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired)
}
