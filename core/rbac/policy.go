package rbac

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentsCreate        Permission = "incidents.create"
	PermIncidentsView          Permission = "incidents.view"
	PermIncidentsRespond       Permission = "incidents.respond"
	PermIncidentsLegacyRespond Permission = "incidents.legacy_respond"
	PermNotificationsView      Permission = "notifications.view"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Role struct {
	Name        string
	Inherits    []string
	Permissions []Permission
}

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Policy answers role/permission questions through a casbin enforcer.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
	roles    map[string]struct{}
}

func DefaultRoles() []Role {
	return []Role{
		{
			Name: RoleUser,
			Permissions: []Permission{
				PermIncidentsCreate,
				PermIncidentsView,
				PermIncidentsRespond,
				PermIncidentsLegacyRespond,
			},
		},
		{
			Name:        RoleAdmin,
			Inherits:    []string{RoleUser},
			Permissions: []Permission{PermNotificationsView},
		},
	}
}

func NewPolicy(roles []Role) *Policy {
	p, err := BuildPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

func BuildPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	p := &Policy{enforcer: e}
	if err := p.load(roles); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) load(roles []Role) error {
	p.enforcer.ClearPolicy()
	p.roles = make(map[string]struct{}, len(roles))
	for _, role := range roles {
		name := strings.TrimSpace(role.Name)
		if name == "" {
			continue
		}
		p.roles[name] = struct{}{}
		for _, perm := range role.Permissions {
			if _, err := p.enforcer.AddPolicy(name, string(perm)); err != nil {
				return fmt.Errorf("add policy %s/%s: %w", name, perm, err)
			}
		}
		for _, parent := range role.Inherits {
			if _, err := p.enforcer.AddGroupingPolicy(name, parent); err != nil {
				return fmt.Errorf("add inheritance %s->%s: %w", name, parent, err)
			}
		}
	}
	return nil
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || perm == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// KnownRole reports whether name is one of the configured roles.
func (p *Policy) KnownRole(name string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.roles[name]
	return ok
}
