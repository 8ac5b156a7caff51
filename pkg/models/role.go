package models

// Role identifies a category of worker. The core roles are a closed set, but
// any non-empty string is a usable role so experimental roles can be added
// through configuration without code changes.
type Role string

const (
	// RoleProductManager intakes requirements and originates work.
	RoleProductManager Role = "product_manager"
	// RoleLead plans and coordinates work across roles.
	RoleLead Role = "lead"
	// RoleEngineer implements tasks.
	RoleEngineer Role = "engineer"
	// RoleTester validates completed work.
	RoleTester Role = "tester"
	// RoleDesigner produces design artifacts.
	RoleDesigner Role = "designer"
	// RoleArchitect owns architecture and technology selection.
	RoleArchitect Role = "architect"
	// RoleDataEngineer owns data extraction and pipelines.
	RoleDataEngineer Role = "data_engineer"
	// RoleOperator is the human operator interacting through the CLI/API.
	RoleOperator Role = "operator"
)

// CoreRoles lists the built-in roles registered at startup.
var CoreRoles = []Role{
	RoleProductManager,
	RoleLead,
	RoleEngineer,
	RoleTester,
	RoleDesigner,
	RoleArchitect,
	RoleDataEngineer,
}

// Known returns true if the role is one of the built-in core roles.
func (r Role) Known() bool {
	for _, core := range CoreRoles {
		if r == core {
			return true
		}
	}
	return false
}
