package service

// Actor identifies who is performing an operation. The gateway in front of
// this service authenticates the caller and forwards identity headers; here
// only the id and role matter.
type Actor struct {
	ID   string
	Role string
}

// RoleAdmin is the role allowed to decide correction and leave requests
const RoleAdmin = "admin"

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanActFor reports whether the actor may operate on the given user's data
func (a Actor) CanActFor(userID string) bool {
	return a.ID == userID || a.IsAdmin()
}
