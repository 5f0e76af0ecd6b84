package domain

// Role enumerates viewer roles resolved by the external identity provider.
type Role string

const (
	RoleRequester  Role = "REQUESTER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)
