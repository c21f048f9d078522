package identity

// Principal is the authenticated subject extracted from a verified token.
type Principal struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the principal carries the given realm role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Record is a user entry from the identity provider's admin API.
type Record struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
