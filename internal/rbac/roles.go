package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOwner is the workspace owner: full access to that workspace's
	// sessions, appointments and reports.
	RoleOwner = "owner"
	// RoleOperator runs internal pool and provisioning actions. Hidden role:
	// denied unless a route allows it explicitly.
	RoleOperator   = "operator"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleOperator }
