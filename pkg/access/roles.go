package access

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

const roleGrantPrefix = "role:"

// AccountSubject is the casbin subject for an account.
func AccountSubject(accountID int64) string {
	return fmt.Sprintf("account:%d", accountID)
}

// RoleProvider derives an account's role set from casbin grouping policies
// of the form `g, account:<id>, role:<name>`. Role hierarchies declared in
// the policy are flattened through the enforcer's implicit-role resolution.
type RoleProvider struct {
	enforcer *casbin.Enforcer
}

func NewRoleProvider(modelPath string, policyPath string) (*RoleProvider, error) {
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(fileadapter.NewAdapter(policyPath))
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &RoleProvider{enforcer: enforcer}, nil
}

// RolesForAccount returns the account's granted roles. Every known account
// additionally holds the authenticated pseudo-role.
func (p *RoleProvider) RolesForAccount(accountID int64) ([]string, error) {
	grants, err := p.enforcer.GetImplicitRolesForUser(AccountSubject(accountID))
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(grants)+1)
	roles = append(roles, RoleAuthenticated)
	for _, grant := range grants {
		name := strings.TrimPrefix(grant, roleGrantPrefix)
		if name == grant || strings.TrimSpace(name) == "" {
			continue
		}
		roles = append(roles, name)
	}
	return roles, nil
}

// CallerFor builds the caller context for an account.
func (p *RoleProvider) CallerFor(accountID int64) (Caller, error) {
	roles, err := p.RolesForAccount(accountID)
	if err != nil {
		return Caller{}, err
	}
	return Caller{AccountID: accountID, Roles: roles}, nil
}
