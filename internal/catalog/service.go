// Package catalog answers the existence questions the engine asks about
// products, variants, and locations. Catalog rows are owned upstream; the
// only write is lazily creating a product's default variant.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
)

const defaultVariantName = "Default"

// Gateway is the tenant-scoped catalog surface used by pricing, transfers, and orders.
type Gateway interface {
	WithTx(tx *gorm.DB) Gateway
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	GetOrCreateDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
	GetLocation(ctx context.Context, locationID uuid.UUID) (*models.Location, error)
	// ResolveVariant returns variantID when set (after checking it belongs to
	// productID) and otherwise the product's default variant.
	ResolveVariant(ctx context.Context, productID, variantID uuid.UUID) (uuid.UUID, error)
}

type gateway struct {
	repo Repository
}

// NewGateway wires a catalog gateway.
func NewGateway(repo Repository) (Gateway, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &gateway{repo: repo}, nil
}

func (g *gateway) WithTx(tx *gorm.DB) Gateway {
	return &gateway{repo: g.repo.WithTx(tx)}
}

func (g *gateway) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := g.repo.FindProduct(ctx, productID)
	if err != nil {
		return nil, notFoundOr(err, "product not found", "load product")
	}
	return product, nil
}

func (g *gateway) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	variant, err := g.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, notFoundOr(err, "variant not found", "load variant")
	}
	if productID != uuid.Nil && variant.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found for product")
	}
	return variant, nil
}

func (g *gateway) GetOrCreateDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error) {
	if _, err := g.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	variant, err := g.repo.FindDefaultVariant(ctx, productID)
	if err == nil {
		return variant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load default variant")
	}

	created := &models.ProductVariant{
		ProductID: productID,
		Name:      defaultVariantName,
		IsDefault: true,
		IsActive:  true,
	}
	if err := g.repo.CreateVariant(ctx, created); err != nil {
		// Lost a race with a concurrent creator; the partial unique index kept one row.
		if pkgdb.IsUniqueViolation(err, "ux_product_variants_default") {
			existing, findErr := g.repo.FindDefaultVariant(ctx, productID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "reload default variant")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create default variant")
	}
	return created, nil
}

func (g *gateway) GetLocation(ctx context.Context, locationID uuid.UUID) (*models.Location, error) {
	if locationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id is required")
	}
	location, err := g.repo.FindLocation(ctx, locationID)
	if err != nil {
		return nil, notFoundOr(err, "location not found", "load location")
	}
	return location, nil
}

func (g *gateway) ResolveVariant(ctx context.Context, productID, variantID uuid.UUID) (uuid.UUID, error) {
	if variantID != uuid.Nil {
		variant, err := g.GetVariant(ctx, productID, variantID)
		if err != nil {
			return uuid.Nil, err
		}
		return variant.ID, nil
	}
	variant, err := g.GetOrCreateDefaultVariant(ctx, productID)
	if err != nil {
		return uuid.Nil, err
	}
	return variant.ID, nil
}

func notFoundOr(err error, notFoundMsg, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
