package service

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller of an operation, extracted from the
// request token by the auth middleware.
type Identity struct {
	UserID string
	Roles  []string
}

// PermissionGate is consulted before every mutating operation. A denial
// short-circuits the call with ErrPermissionDenied and zero side effects.
type PermissionGate interface {
	Check(userID string, roles []string, permission string) bool
}

// AuditSink receives a best-effort notification after a successful commit.
// Implementations must never fail the already-committed business
// transaction; errors are theirs to log.
type AuditSink interface {
	Record(userID, action string, before, after any, entity string)
}

// CatalogReader answers read-only existence checks against the surrounding
// ERP's catalog before any mutation touches a key.
type CatalogReader interface {
	ProductExists(ctx context.Context, id uuid.UUID) (bool, error)
	WarehouseExists(ctx context.Context, id uuid.UUID) (bool, error)
	LocationExists(ctx context.Context, id uuid.UUID) (bool, error)
}
