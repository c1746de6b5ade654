package enums

// Role is the identity role carried in access tokens.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsOperator reports whether the role may read every buyer's orders.
func (r Role) IsOperator() bool {
	return r == RoleSeller
}
