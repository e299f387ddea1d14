package domain

import "strings"

// Role enumerates actor roles supplied by the identity boundary.
type Role string

const (
	RoleUser    Role = "USER"
	RoleAgent   Role = "AGENT"
	RoleManager Role = "MANAGER"
)

// ParseRole accepts case-insensitive role names. Unknown names return ok=false.
func ParseRole(val string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(val))) {
	case RoleUser:
		return RoleUser, true
	case RoleAgent:
		return RoleAgent, true
	case RoleManager:
		return RoleManager, true
	}
	return "", false
}

// Actor is the caller identity passed explicitly into every core call.
type Actor struct {
	Address string
	Role    Role
}

// ZeroAddress is the ledger's placeholder for "no account".
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// SameAddress compares two account addresses case-insensitively.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
