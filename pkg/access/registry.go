package access

const (
	RoleSystemAdmin   = "systemAdmin"
	RoleOrgCreator    = "orgCreator"
	RolePersonCreator = "personCreator"
	RoleAuthenticated = "authenticated"
)

const (
	CapabilityCanEdit = "canEdit"
	CapabilityCanView = "canView"
	CapabilityIsSelf  = "isSelf"
)

const (
	OpCreate    = "create"
	OpFind      = "find"
	OpConstruct = "construct"
	OpUpdate    = "update"
	OpDelete    = "delete"
)
