package auth

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleInspector Role = "inspector"
)

// Identity is the acting user carried by a verified bearer token.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity may change payment lots.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
