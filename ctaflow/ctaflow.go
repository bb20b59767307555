// Package ctaflow enforces the permitted hand-off graph between tool roles.
// The routing table is static; it keeps the cross-tool call graph acyclic.
package ctaflow

import (
	"context"
	"fmt"

	"github.com/smokeyworks/smokey/libauth"
)

// Role classifies a tool inside the hand-off graph.
type Role string

const (
	RoleFact           Role = "fact"
	RolePrioritization Role = "prioritization"
	RoleExecution      Role = "execution"
	RolePlanning       Role = "planning"
	RoleClientRecord   Role = "client_record"
)

// Known tool identifiers.
const (
	ToolAudit     = "audit"
	ToolBurnt     = "burnt"
	ToolContent   = "content"
	ToolStructure = "structure"
	ToolSmokey    = "smokey"

	// TargetClientRecord is the only legal hand-off target for execution
	// tools. It is not itself a tool.
	TargetClientRecord = "client_record"
)

var toolRoles = map[string]Role{
	ToolAudit:          RoleFact,
	ToolBurnt:          RolePrioritization,
	ToolContent:        RoleExecution,
	ToolStructure:      RoleExecution,
	ToolSmokey:         RolePlanning,
	TargetClientRecord: RoleClientRecord,
}

// allowedTargets is the routing table. Fact hands off to prioritization,
// prioritization to execution, execution only back to the client record.
// The planning tool never calls other tools directly.
var allowedTargets = map[Role]map[Role]bool{
	RoleFact:           {RolePrioritization: true},
	RolePrioritization: {RoleExecution: true},
	RoleExecution:      {RoleClientRecord: true},
	RolePlanning:       {},
}

// Decision is the outcome of a hand-off check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// RoleOf returns the role of a known tool identifier.
func RoleOf(tool string) (Role, bool) {
	role, ok := toolRoles[tool]
	return role, ok
}

// Validate checks whether the source tool may hand off to the target.
func Validate(source, target string) Decision {
	sourceRole, ok := toolRoles[source]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown source tool %q", source)}
	}
	targetRole, ok := toolRoles[target]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown target tool %q", target)}
	}
	if sourceRole == RoleClientRecord {
		return Decision{Allowed: false, Reason: "client record cannot initiate hand-offs"}
	}
	if !allowedTargets[sourceRole][targetRole] {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("%s tools may not hand off to %s tools", sourceRole, targetRole),
		}
	}
	return Decision{
		Allowed: true,
		Reason:  fmt.Sprintf("%s to %s hand-off permitted", sourceRole, targetRole),
	}
}

// ValidateWithOverride applies the routing table but lets an identity holding
// the cta_override capability bypass a denial. The bypass is explicit: it
// resolves capabilities on every call and is never cached.
func ValidateWithOverride(ctx context.Context, resolver libauth.Resolver, source, target string) (Decision, error) {
	decision := Validate(source, target)
	if decision.Allowed {
		return decision, nil
	}
	if err := libauth.RequireCapability(ctx, resolver, libauth.CapabilityCTAOverride); err != nil {
		return decision, nil
	}
	return Decision{
		Allowed: true,
		Reason:  fmt.Sprintf("operator override: %s", decision.Reason),
	}, nil
}
