package services

import (
	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
	"github.com/Raaghu/collaboration/pkg/access"
)

const (
	EntityOrganization = "organization"
	EntityPerson       = "person"
)

const (
	AttrID          = "id"
	AttrAccountID   = "accountId"
	AttrAccountName = "accountName"
	AttrName        = "name"
	AttrDOI         = "doi"
	AttrType        = "type"
	AttrParentID    = "parentId"
	AttrFirstName   = "firstName"
	AttrMiddleName  = "middleName"
	AttrLastName    = "lastName"
	AttrDOB         = "dob"
	AttrGender      = "gender"
	AttrEmail       = "email"
	AttrPhone       = "phone"
)

var accountSpec = types.EntitySpec{
	Table:   types.TableAccount,
	Primary: "id",
	Attributes: []types.AttributeSpec{
		{Name: AttrID, Column: "id", Get: true},
		{Name: AttrAccountName, Column: "account_name", Required: true, Get: true},
	},
}

var organizationSpec = types.EntitySpec{
	Table:   types.TableOrganization,
	Primary: "id",
	Attributes: []types.AttributeSpec{
		{Name: AttrID, Column: "id", Get: true},
		{Name: AttrAccountID, Column: "account_id", Reference: types.TableAccount, Get: true},
		{Name: AttrName, Column: "name", Required: true, Get: true, Set: true},
		{Name: AttrDOI, Column: "doi", Get: true, Set: true},
		{Name: AttrType, Column: "type", Get: true, Set: true},
		// parentId is mutable only through AddChildren/RemoveChildren.
		{Name: AttrParentID, Column: "parent_id", Reference: types.TableOrganization, Get: true, Protected: true},
	},
}

var personSpec = types.EntitySpec{
	Table:   types.TablePerson,
	Primary: "id",
	Attributes: []types.AttributeSpec{
		{Name: AttrID, Column: "id", Get: true},
		{Name: AttrAccountID, Column: "account_id", Reference: types.TableAccount, Get: true},
		{Name: AttrFirstName, Column: "first_name", Required: true, Get: true, Set: true},
		{Name: AttrMiddleName, Column: "middle_name", Get: true, Set: true},
		{Name: AttrLastName, Column: "last_name", Get: true, Set: true},
		{Name: AttrDOB, Column: "dob", Get: true, Set: true},
		{Name: AttrGender, Column: "gender", Get: true, Set: true},
		{Name: AttrEmail, Column: "email", Get: true, Set: true},
		{Name: AttrPhone, Column: "phone", Get: true, Set: true},
	},
}

var organizationPersonSpec = types.EntitySpec{
	Table:   types.TableOrganizationPerson,
	Primary: "id",
	Attributes: []types.AttributeSpec{
		{Name: AttrID, Column: "id", Get: true},
		{Name: "organizationId", Column: "organization_id", Required: true, Reference: types.TableOrganization, Get: true},
		{Name: "personId", Column: "person_id", Required: true, Reference: types.TablePerson, Get: true},
	},
}

// DefaultPolicy is the compiled-in access-requirement table. A YAML policy
// loaded through pkg/access may replace it wholesale.
func DefaultPolicy() access.Policy {
	return access.Policy{
		Capabilities: access.DefaultCapabilities(),
		Entities: map[string]access.EntityPolicy{
			EntityOrganization: {
				Operations: map[string]*access.Requirement{
					access.OpCreate: access.Require(
						access.AllOf(access.Role(access.RoleSystemAdmin)),
						access.AllOf(access.Role(access.RoleOrgCreator)),
					),
					access.OpFind:      access.Require(access.AllOf(access.Role(access.RoleAuthenticated))),
					access.OpConstruct: access.Require(access.AllOf(access.Role(access.RoleAuthenticated))),
					access.OpUpdate: access.Require(
						access.AllOf(access.Role(access.RoleSystemAdmin)),
						access.AllOf(access.Capability(access.CapabilityCanEdit)),
					),
					access.OpDelete: access.Require(access.AllOf(access.Role(access.RoleSystemAdmin))),
				},
				Attributes: map[string]access.AttributeRequirements{
					AttrType: {
						Set: access.Require(access.AllOf(access.Role(access.RoleSystemAdmin))),
					},
				},
			},
			EntityPerson: {
				Operations: map[string]*access.Requirement{
					access.OpCreate: access.Require(
						access.AllOf(access.Role(access.RoleSystemAdmin)),
						access.AllOf(access.Role(access.RolePersonCreator)),
					),
					access.OpFind: access.Require(access.AllOf(access.Role(access.RoleAuthenticated))),
					access.OpConstruct: access.Require(
						access.AllOf(access.Role(access.RoleSystemAdmin)),
						access.AllOf(access.Capability(access.CapabilityIsSelf)),
						access.AllOf(access.Capability(access.CapabilityCanView)),
					),
					access.OpUpdate: access.Require(
						access.AllOf(access.Role(access.RoleSystemAdmin)),
						access.AllOf(access.Capability(access.CapabilityIsSelf)),
					),
					access.OpDelete: access.Require(access.AllOf(access.Role(access.RoleSystemAdmin))),
				},
				Attributes: map[string]access.AttributeRequirements{
					AttrDOB: {
						Get: access.Require(
							access.AllOf(access.Role(access.RoleSystemAdmin)),
							access.AllOf(access.Capability(access.CapabilityIsSelf)),
						),
					},
				},
			},
		},
	}
}
