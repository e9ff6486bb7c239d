// Package authroles maps identity-provider groups onto staff roles.
package authroles

import (
	"strings"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper maps groups by simple string membership rules. When a
// user is in several groups the most privileged role wins.
type StaticRoleMapper struct {
	AdminGroup      string
	SupervisorGroup string
	StudentGroup    string
	ViewerGroup     string
}

// Map returns the role granted by groups.
func (m StaticRoleMapper) Map(groups []string) (domainauth.Role, bool) {
	ranked := []struct {
		group string
		role  domainauth.Role
	}{
		{m.AdminGroup, domainauth.RoleAdmin},
		{m.SupervisorGroup, domainauth.RoleSupervisor},
		{m.StudentGroup, domainauth.RoleStudent},
		{m.ViewerGroup, domainauth.RoleViewer},
	}
	for _, r := range ranked {
		if r.group == "" {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(strings.TrimSpace(g), r.group) {
				return r.role, true
			}
		}
	}
	return "", false
}
