// Package authz builds the casbin enforcer guarding privileged 2FA operations
// (support-desk resets, service-initiated login challenges).
//
// Policies are static and come from configuration: each policy line is
// "role, object, action" and role bindings map a JWT subject to a role.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

var ErrMalformedPolicy = errors.New("authz: policy must be \"role, object, action\"")

// NewEnforcer returns an enforcer loaded with the given policies and
// subject to role bindings.
func NewEnforcer(policies []string, roles map[string]string) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	rules, err := parsePolicies(policies)
	if err != nil {
		return nil, err
	}

	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, err
		}
	}

	for sub, role := range roles {
		sub, role = strings.TrimSpace(sub), strings.TrimSpace(role)
		if sub == "" || role == "" {
			continue
		}
		if _, err := e.AddGroupingPolicy(sub, role); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func parsePolicies(lines []string) ([][]string, error) {
	rules := make([][]string, 0, len(lines))
	for _, line := range lines {
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPolicy, line)
		}

		rule := make([]string, 0, 3)
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, fmt.Errorf("%w: %q", ErrMalformedPolicy, line)
			}
			rule = append(rule, p)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
