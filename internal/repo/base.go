package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the tenant-scoped foundation every domain repository embeds. The
// tenant id is fixed at construction so no query can forget to filter by it.
type Base struct {
	db       *gorm.DB
	tenantID uuid.UUID
}

// NewBase binds conn to tenantID.
func NewBase(db *gorm.DB, tenantID uuid.UUID) Base {
	return Base{db: db, tenantID: tenantID}
}

func (b Base) TenantID() uuid.UUID {
	return b.tenantID
}

// WithTx rebinds the base to tx, keeping the tenant. A nil tx is a no-op.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx, tenantID: b.tenantID}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Scoped returns a query already filtered to the base's tenant.
func (b Base) Scoped(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Where("tenant_id = ?", b.tenantID)
}
