package store

import "errors"

var (
	// ErrUsernameTaken means the username already exists within the company.
	ErrUsernameTaken = errors.New("store: username already taken in company")
	// ErrInviteNotFound means no invite with the given code exists.
	ErrInviteNotFound = errors.New("store: invite code not found")
	// ErrInviteRedeemed means the invite exists but was already consumed.
	ErrInviteRedeemed = errors.New("store: invite code already redeemed")
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidLogin covers both unknown username and wrong password.
	ErrInvalidLogin = errors.New("store: invalid username or password")
)

// IsConflict reports whether the error is a business conflict the caller
// should surface to the user rather than retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrInviteNotFound) ||
		errors.Is(err, ErrInviteRedeemed)
}
