package reconcile

import (
	"fmt"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
)

// RoleLabeler renders addresses as a shortened account plus its role, e.g.
// "0x5aAe...eAed (manager)".
func RoleLabeler(roles *access.RoleDirectory) Labeler {
	return func(address string) string {
		short := address
		if len(address) == 42 {
			short = address[:6] + "..." + address[38:]
		}
		if roles == nil {
			return short
		}
		role := roles.RoleOf(address)
		if role == "" {
			return short
		}
		return fmt.Sprintf("%s (%s)", short, strings.ToLower(string(role)))
	}
}
