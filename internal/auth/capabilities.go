package auth

import "strings"

// Capability names a permission a role grants.
type Capability string

const (
	CapRead        Capability = "read"
	CapEditPosts   Capability = "edit_posts"
	CapManageTerms Capability = "manage_terms"
)

const (
	RoleAdministrator = "administrator"
	RoleEditor        = "editor"
	RoleAuthor        = "author"
	RoleSubscriber    = "subscriber"
)

var roleCapabilities = map[string][]Capability{
	RoleAdministrator: {CapRead, CapEditPosts, CapManageTerms},
	RoleEditor:        {CapRead, CapEditPosts, CapManageTerms},
	RoleAuthor:        {CapRead, CapEditPosts},
	RoleSubscriber:    {CapRead},
}

// NormalizeRole lowercases a role name and maps unknown roles to "".
func NormalizeRole(raw string) string {
	role := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := roleCapabilities[role]; !ok {
		return ""
	}
	return role
}

// RoleCan reports whether role grants capability.
func RoleCan(role string, capability Capability) bool {
	for _, granted := range roleCapabilities[NormalizeRole(role)] {
		if granted == capability {
			return true
		}
	}
	return false
}

// Capabilities returns the capabilities role grants, in a stable order.
func Capabilities(role string) []Capability {
	return append([]Capability(nil), roleCapabilities[NormalizeRole(role)]...)
}
