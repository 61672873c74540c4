// Package dbtest opens isolated in-memory sqlite databases carrying the full
// engine schema, plus seed helpers for catalog rows.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
)

// Open returns a fresh shared-cache in-memory database migrated with every model.
func Open(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Fixture is a tenant with one product, its default variant, and two locations.
type Fixture struct {
	TenantID  uuid.UUID
	ProductID uuid.UUID
	VariantID uuid.UUID
	Outlet    uuid.UUID
	Warehouse uuid.UUID
}

// Key returns the stock key for the fixture product at location.
func (f Fixture) Key(location uuid.UUID) models.StockKey {
	return models.StockKey{TenantID: f.TenantID, LocationID: location, ProductID: f.ProductID, VariantID: f.VariantID}
}

// Seed creates a Fixture whose product has the given base price.
func Seed(t *testing.T, db *gorm.DB, basePrice string) Fixture {
	t.Helper()
	tenant := uuid.New()
	product := SeedProduct(t, db, tenant, basePrice)
	variant := SeedVariant(t, db, tenant, product.ID, true)
	return Fixture{
		TenantID:  tenant,
		ProductID: product.ID,
		VariantID: variant.ID,
		Outlet:    SeedLocation(t, db, tenant, enums.LocationKindOutlet).ID,
		Warehouse: SeedLocation(t, db, tenant, enums.LocationKindWarehouse).ID,
	}
}

func SeedProduct(t *testing.T, db *gorm.DB, tenantID uuid.UUID, basePrice string) *models.Product {
	t.Helper()
	product := &models.Product{
		TenantID:  tenantID,
		Name:      "Widget",
		SKU:       "W-" + uuid.NewString()[:8],
		BasePrice: decimal.RequireFromString(basePrice),
		IsActive:  true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func SeedVariant(t *testing.T, db *gorm.DB, tenantID, productID uuid.UUID, isDefault bool) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{
		TenantID:  tenantID,
		ProductID: productID,
		Name:      "Variant",
		IsDefault: isDefault,
		IsActive:  true,
	}
	require.NoError(t, db.Create(variant).Error)
	return variant
}

func SeedLocation(t *testing.T, db *gorm.DB, tenantID uuid.UUID, kind enums.LocationKind) *models.Location {
	t.Helper()
	location := &models.Location{
		TenantID: tenantID,
		Name:     string(kind),
		Kind:     kind,
		IsActive: true,
	}
	require.NoError(t, db.Create(location).Error)
	return location
}

// SumMovements returns the raw ledger sum for key.
func SumMovements(t *testing.T, db *gorm.DB, key models.StockKey) int {
	t.Helper()
	var total int64
	require.NoError(t, db.Model(&models.StockMovement{}).
		Where("tenant_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
			key.TenantID, key.LocationID, key.ProductID, key.VariantID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error)
	return int(total)
}

// Summary loads the summary row for key, failing the test when it is missing.
func Summary(t *testing.T, db *gorm.DB, key models.StockKey) models.InventorySummary {
	t.Helper()
	var row models.InventorySummary
	require.NoError(t, db.Where("tenant_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
		key.TenantID, key.LocationID, key.ProductID, key.VariantID).First(&row).Error)
	return row
}
