// Package rbac maps console roles to the route trees they may visit and gates
// requests accordingly.
package rbac

import (
	"path"
	"sort"
	"strings"
)

// Role names one actor type of the console.
type Role string

const (
	Transportador Role = "transportador"
	Motorista     Role = "motorista"
	Revenda       Role = "revenda"
	Borracharia   Role = "borracharia"
	Recapagem     Role = "recapagem"
)

// FallbackDashboard is where sessions with an unknown role land. It is guarded
// by authentication only, so sending a misplaced user there can never loop.
const FallbackDashboard = "/"

// SharedPrefixes are reachable by every authenticated role.
var SharedPrefixes = []string{"/conta"}

// Resolver answers which route prefixes a role may enter.
type Resolver struct {
	prefixes map[Role][]string
}

// NewResolver returns the console's static role table. Each role's first prefix
// is the root of its tree and hosts its dashboard.
func NewResolver() *Resolver {
	return &Resolver{prefixes: map[Role][]string{
		Transportador: {"/transportador"},
		Motorista:     {"/motorista"},
		Revenda:       {"/revenda"},
		Borracharia:   {"/borracharia"},
		Recapagem:     {"/recapagem"},
	}}
}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	switch role {
	case Transportador, Motorista, Revenda, Borracharia, Recapagem:
		return role, true
	}
	return "", false
}

// Roles lists the known roles in a stable order.
func (r *Resolver) Roles() []Role {
	roles := make([]Role, 0, len(r.prefixes))
	for role := range r.prefixes {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Root returns the tree root of a known role.
func (r *Resolver) Root(role Role) (string, bool) {
	prefixes := r.prefixes[role]
	if len(prefixes) == 0 {
		return "", false
	}
	return prefixes[0], true
}

// DefaultDashboard returns the landing path for role, or FallbackDashboard
// when the role is unknown.
func (r *Resolver) DefaultDashboard(role string) string {
	parsed, ok := ParseRole(role)
	if !ok {
		return FallbackDashboard
	}
	root, ok := r.Root(parsed)
	if !ok {
		return FallbackDashboard
	}
	return root + "/dashboard"
}

// IsAllowed reports whether role may visit routePath.
func (r *Resolver) IsAllowed(role, routePath string) bool {
	clean := path.Clean("/" + routePath)
	for _, prefix := range SharedPrefixes {
		if underPrefix(clean, prefix) {
			return true
		}
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return false
	}
	for _, prefix := range r.prefixes[parsed] {
		if underPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// AllowedPrefixes lists the prefixes role may visit, own tree first.
func (r *Resolver) AllowedPrefixes(role string) []string {
	var out []string
	if parsed, ok := ParseRole(role); ok {
		out = append(out, r.prefixes[parsed]...)
	}
	return append(out, SharedPrefixes...)
}

func underPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
