// Package auth resolves role-based privileges for the permission gate
// consulted before every mutating stock operation.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"go-stock-ledger/internal/model"

	"gorm.io/gorm"
)

// Gate checks whether any of the caller's roles carries a privilege. The
// role-to-privilege mapping is loaded once and cached; Reload refreshes it.
type Gate struct {
	mu             sync.RWMutex
	db             *gorm.DB
	rolePrivileges map[string]map[string]bool
}

// NewGate builds a gate backed by the role/privilege tables.
func NewGate(db *gorm.DB) (*Gate, error) {
	g := &Gate{db: db}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewStaticGate builds a gate from a fixed role-to-privileges mapping, used
// in dev mode and tests where no database is present.
func NewStaticGate(mapping map[string][]string) *Gate {
	g := &Gate{rolePrivileges: make(map[string]map[string]bool, len(mapping))}
	for role, privileges := range mapping {
		set := make(map[string]bool, len(privileges))
		for _, p := range privileges {
			set[p] = true
		}
		g.rolePrivileges[role] = set
	}
	return g
}

// Reload re-reads the role/privilege tables into the cache.
func (g *Gate) Reload() error {
	if g.db == nil {
		return nil
	}
	var roles []model.Role
	if err := g.db.Preload("Privileges").Find(&roles).Error; err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	mapping := make(map[string]map[string]bool, len(roles))
	for _, role := range roles {
		set := make(map[string]bool, len(role.Privileges))
		for _, p := range role.Privileges {
			set[p.Code] = true
		}
		mapping[role.Code] = set
	}
	g.mu.Lock()
	g.rolePrivileges = mapping
	g.mu.Unlock()
	return nil
}

// Check reports whether any of roles carries permission. The userID is part
// of the gate contract for implementations with per-user grants; role
// resolution here does not need it.
func (g *Gate) Check(userID string, roles []string, permission string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, role := range roles {
		if g.rolePrivileges[role][permission] {
			return true
		}
	}
	return false
}

// SeedDefaults inserts the default roles and privileges when absent and
// links them per DefaultRolePrivileges.
func SeedDefaults(db *gorm.DB) error {
	for _, p := range model.DefaultPrivileges {
		var existing model.Privilege
		if err := db.Where("code = ?", p.Code).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&p).Error; err != nil {
				return err
			}
		}
	}
	for _, r := range model.DefaultRoles {
		var existing model.Role
		if err := db.Where("code = ?", r.Code).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&r).Error; err != nil {
				return err
			}
			existing = r
		}
		if len(existing.Privileges) > 0 {
			continue
		}
		var privileges []model.Privilege
		if err := db.Where("code IN ?", model.DefaultRolePrivileges[r.Code]).Find(&privileges).Error; err != nil {
			return err
		}
		if err := db.Model(&existing).Association("Privileges").Replace(privileges); err != nil {
			return err
		}
	}
	return nil
}
