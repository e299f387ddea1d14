package access

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// RoleDirectory maps account addresses to roles. It is the injected
// identity-to-role configuration; nothing in the core embeds addresses.
type RoleDirectory struct {
	mu       sync.RWMutex
	roles    map[string]domain.Role
	fallback domain.Role
}

// rolesFile is the YAML layout of ACCESS_ROLES_FILE.
//
//	default: user
//	roles:
//	  "0xabc...": manager
type rolesFile struct {
	Default string            `yaml:"default"`
	Roles   map[string]string `yaml:"roles"`
}

// NewRoleDirectory returns a directory where unmapped addresses get fallback.
func NewRoleDirectory(fallback domain.Role) *RoleDirectory {
	return &RoleDirectory{roles: make(map[string]domain.Role), fallback: fallback}
}

// RoleOf returns the role for an address; unmapped addresses get the fallback.
func (d *RoleDirectory) RoleOf(address string) domain.Role {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if role, ok := d.roles[normalized]; ok {
		return role
	}
	return d.fallback
}

// SetRole maps an address to a role.
func (d *RoleDirectory) SetRole(address string, role domain.Role) error {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[normalized] = role
	return nil
}

// Snapshot returns a copy of all explicit mappings.
func (d *RoleDirectory) Snapshot() map[string]domain.Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]domain.Role, len(d.roles))
	for k, v := range d.roles {
		out[k] = v
	}
	return out
}

// LoadRoleDirectory builds a directory from the optional YAML roles file and
// the optional managers list. Either path may be empty.
func LoadRoleDirectory(rolesPath, managersPath string, logger *zap.Logger) (*RoleDirectory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := NewRoleDirectory(domain.RoleUser)

	if rolesPath != "" {
		data, err := os.ReadFile(rolesPath)
		if err != nil {
			return nil, fmt.Errorf("read roles file: %w", err)
		}
		if err := dir.applyYAML(data); err != nil {
			return nil, fmt.Errorf("parse roles file %s: %w", rolesPath, err)
		}
	}

	if managersPath != "" {
		data, err := os.ReadFile(managersPath)
		if err != nil {
			return nil, fmt.Errorf("read managers file: %w", err)
		}
		promoted := dir.applyManagers(data, logger)
		logger.Info("managers loaded", zap.String("file", managersPath), zap.Int("count", promoted))
	}

	return dir, nil
}

func (d *RoleDirectory) applyYAML(data []byte) error {
	var file rolesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Default != "" {
		role, ok := domain.ParseRole(file.Default)
		if !ok {
			return fmt.Errorf("unknown default role %q", file.Default)
		}
		d.fallback = role
	}
	for addr, name := range file.Roles {
		role, ok := domain.ParseRole(name)
		if !ok {
			return fmt.Errorf("unknown role %q for %s", name, addr)
		}
		if err := d.SetRole(addr, role); err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
	}
	return nil
}

// applyManagers promotes every valid address line to Manager. Lines not
// starting with 0x are ignored; malformed addresses are skipped with a warning.
func (d *RoleDirectory) applyManagers(data []byte, logger *zap.Logger) int {
	promoted := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "0x") {
			continue
		}
		if err := d.SetRole(line, domain.RoleManager); err != nil {
			logger.Warn("skipping invalid manager address", zap.String("address", line))
			continue
		}
		promoted++
	}
	return promoted
}
