package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanAccessCustomer reports whether the actor may act on records owned by customerID.
func (a Actor) CanAccessCustomer(customerID int64) bool {
	return a.IsStaff() || (a.Role == RoleCustomer && a.UserID == customerID)
}

// System is used by batch jobs.
var System = Actor{Role: RoleAdmin}
