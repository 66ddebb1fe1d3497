// Package identity carries the authenticated caller through service calls.
package identity

import "signbridge-server/internal/models"

// Caller is who is performing an operation. It is built from a verified
// access token and passed explicitly to every service method.
type Caller struct {
	UserID    string
	Role      models.Role
	IPAddress string
	UserAgent string
}

// Is reports whether the caller has the given role.
func (c Caller) Is(role models.Role) bool {
	return c.Role == role
}

// Valid reports whether the caller carries a user id and a known role.
func (c Caller) Valid() bool {
	return c.UserID != "" && c.Role.Valid()
}
