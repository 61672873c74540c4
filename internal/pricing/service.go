// Package pricing resolves the effective unit price of a product from the
// layered price table and checks caller-supplied prices against it.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/catalog"
	"github.com/angelmondragon/stockcore/pkg/cache"
	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
)

// Source names the specificity level that produced a price.
type Source string

const (
	SourceVariantOutlet Source = "variant_outlet"
	SourceVariant       Source = "variant"
	SourceProductOutlet Source = "product_outlet"
	SourceProduct       Source = "product"
	SourceBasePrice     Source = "base_price"
)

// ResolveInput selects a price. VariantID and LocationID may be nil UUIDs;
// PriceType defaults to standard.
type ResolveInput struct {
	ProductID  uuid.UUID
	VariantID  uuid.UUID
	LocationID uuid.UUID
	PriceType  enums.PriceType
}

// ResolvedPrice is the effective MRP and sale price for a lookup.
type ResolvedPrice struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID uuid.UUID       `json:"variant_id"`
	PriceType enums.PriceType `json:"price_type"`
	MRPPrice  decimal.Decimal `json:"mrp_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Source    Source          `json:"source"`
	EntryID   *uuid.UUID      `json:"entry_id,omitempty"`
	// ExpiresAt is when this answer may change: the winning entry's
	// valid_until or the next scheduled valid_from, whichever is first.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SetPriceInput writes one price entry.
type SetPriceInput struct {
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	OutletID   *uuid.UUID
	PriceType  enums.PriceType
	MRPPrice   decimal.Decimal
	SalePrice  decimal.Decimal
	ValidFrom  time.Time
	ValidUntil *time.Time
	CreatedBy  *uuid.UUID
}

// Resolver is the price surface used by orders and the operator CLI.
type Resolver interface {
	WithTx(tx *gorm.DB) Resolver
	Resolve(ctx context.Context, input ResolveInput) (*ResolvedPrice, error)
	// Validate compares a caller-supplied unit price with the resolved sale
	// price. In lenient mode a mismatch returns (false, nil); strict mode
	// returns a validation error.
	Validate(ctx context.Context, provided decimal.Decimal, resolved *ResolvedPrice) (bool, error)
	SetPrice(ctx context.Context, input SetPriceInput) (*models.PriceEntry, error)
}

type resolver struct {
	repo      Repository
	catalog   catalog.Gateway
	cache     cache.Cache
	ttl       time.Duration
	strict    bool
	tolerance decimal.Decimal
	logg      *logger.Logger
	now       func() time.Time
}

// NewResolver wires a price resolver. A nil cache disables caching.
func NewResolver(repo Repository, gateway catalog.Gateway, c cache.Cache, pricingCfg config.PricingConfig, cacheCfg config.CacheConfig, logg *logger.Logger) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("catalog gateway required")
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &resolver{
		repo:      repo,
		catalog:   gateway,
		cache:     c,
		ttl:       cacheCfg.PriceTTL,
		strict:    pricingCfg.Strict,
		tolerance: decimal.NewFromFloat(pricingCfg.Tolerance),
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *resolver) WithTx(tx *gorm.DB) Resolver {
	clone := *r
	clone.repo = r.repo.WithTx(tx)
	clone.catalog = r.catalog.WithTx(tx)
	return &clone
}

type lookup struct {
	source  Source
	variant *uuid.UUID
	outlet  *uuid.UUID
}

func lookups(variantID, locationID uuid.UUID) []lookup {
	var variant, outlet *uuid.UUID
	if variantID != uuid.Nil {
		variant = &variantID
	}
	if locationID != uuid.Nil {
		outlet = &locationID
	}
	out := make([]lookup, 0, 4)
	if variant != nil && outlet != nil {
		out = append(out, lookup{SourceVariantOutlet, variant, outlet})
	}
	if variant != nil {
		out = append(out, lookup{SourceVariant, variant, nil})
	}
	if outlet != nil {
		out = append(out, lookup{SourceProductOutlet, nil, outlet})
	}
	return append(out, lookup{SourceProduct, nil, nil})
}

func (r *resolver) Resolve(ctx context.Context, input ResolveInput) (*ResolvedPrice, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	priceType := input.PriceType.OrDefault()
	if !priceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid price type %q", input.PriceType))
	}

	key := r.cacheKey(ctx, input.ProductID, input.VariantID, input.LocationID, priceType)
	var cached ResolvedPrice
	if hit, err := cache.GetJSON(ctx, r.cache, key, &cached); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "cache_key", key), "price cache read failed")
	} else if hit && (cached.ExpiresAt == nil || r.now().Before(*cached.ExpiresAt)) {
		return &cached, nil
	}

	resolved, err := r.resolveUncached(ctx, input.ProductID, input.VariantID, input.LocationID, priceType)
	if err != nil {
		return nil, err
	}
	ttl, ok := r.cacheTTL(resolved)
	if !ok {
		return resolved, nil
	}
	if err := cache.SetJSON(ctx, r.cache, key, resolved, ttl); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "cache_key", key), "price cache write failed")
	}
	return resolved, nil
}

// cacheTTL caps the configured TTL at the resolution's expiry. ok is false
// when the answer is already stale and must not be cached.
func (r *resolver) cacheTTL(p *ResolvedPrice) (time.Duration, bool) {
	if p.ExpiresAt == nil {
		return r.ttl, true
	}
	left := p.ExpiresAt.Sub(r.now())
	if left <= 0 {
		return 0, false
	}
	if r.ttl > 0 && r.ttl < left {
		return r.ttl, true
	}
	return left, true
}

func (r *resolver) resolveUncached(ctx context.Context, productID, variantID, locationID uuid.UUID, priceType enums.PriceType) (*ResolvedPrice, error) {
	now := r.now()
	next, err := r.repo.NextStart(ctx, productID, priceType, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load scheduled prices")
	}
	for _, l := range lookups(variantID, locationID) {
		entry, err := r.repo.FindEffective(ctx, productID, l.variant, l.outlet, priceType, now)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load price entry")
		}
		id := entry.ID
		return &ResolvedPrice{
			ProductID: productID,
			VariantID: variantID,
			PriceType: priceType,
			MRPPrice:  entry.MRPPrice,
			SalePrice: entry.SalePrice,
			Source:    l.source,
			EntryID:   &id,
			ExpiresAt: earliest(entry.ValidUntil, next),
		}, nil
	}

	product, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ResolvedPrice{
		ProductID: productID,
		VariantID: variantID,
		PriceType: priceType,
		MRPPrice:  product.BasePrice,
		SalePrice: product.BasePrice,
		Source:    SourceBasePrice,
		ExpiresAt: next,
	}, nil
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil || a.Before(*b):
		return a
	default:
		return b
	}
}

func (r *resolver) Validate(ctx context.Context, provided decimal.Decimal, resolved *ResolvedPrice) (bool, error) {
	if resolved == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "resolved price required")
	}
	if provided.Sub(resolved.SalePrice).Abs().LessThanOrEqual(r.tolerance) {
		return true, nil
	}

	details := map[string]string{
		"provided": provided.StringFixed(2),
		"expected": resolved.SalePrice.StringFixed(2),
		"source":   string(resolved.Source),
	}
	if r.strict {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unit price does not match the effective price").WithDetails(details)
	}
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"product_id": resolved.ProductID.String(),
		"provided":   details["provided"],
		"expected":   details["expected"],
	}), "unit price differs from effective price")
	return false, nil
}

func (r *resolver) SetPrice(ctx context.Context, input SetPriceInput) (*models.PriceEntry, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	priceType := input.PriceType.OrDefault()
	if !priceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid price type %q", input.PriceType))
	}
	if input.MRPPrice.IsNegative() || input.SalePrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
	}
	if input.SalePrice.GreaterThan(input.MRPPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale price must not exceed mrp price")
	}
	validFrom := input.ValidFrom.UTC()
	if input.ValidFrom.IsZero() {
		validFrom = r.now()
	}
	var validUntil *time.Time
	if input.ValidUntil != nil {
		until := input.ValidUntil.UTC()
		if !until.After(validFrom) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid_until must be after valid_from")
		}
		validUntil = &until
	}

	if _, err := r.catalog.GetProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}
	if input.VariantID != nil {
		if _, err := r.catalog.GetVariant(ctx, input.ProductID, *input.VariantID); err != nil {
			return nil, err
		}
	}
	if input.OutletID != nil {
		if _, err := r.catalog.GetLocation(ctx, *input.OutletID); err != nil {
			return nil, err
		}
	}

	entry := &models.PriceEntry{
		ProductID:  input.ProductID,
		VariantID:  input.VariantID,
		OutletID:   input.OutletID,
		PriceType:  priceType,
		MRPPrice:   input.MRPPrice.Round(2),
		SalePrice:  input.SalePrice.Round(2),
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		CreatedBy:  input.CreatedBy,
		CreatedAt:  r.now(),
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create price entry")
	}
	r.invalidate(ctx, input.ProductID)
	return entry, nil
}

// Cached prices for a product are keyed under a generation token; writing a
// price rotates the token so every variant/outlet combination misses at once.
func (r *resolver) generationKey(productID uuid.UUID) string {
	return strings.Join([]string{"price", "gen", r.repo.TenantID().String(), productID.String()}, ":")
}

func (r *resolver) cacheKey(ctx context.Context, productID, variantID, locationID uuid.UUID, priceType enums.PriceType) string {
	gen := "0"
	if raw, ok, err := r.cache.Get(ctx, r.generationKey(productID)); err == nil && ok {
		gen = string(raw)
	}
	return strings.Join([]string{
		"price", r.repo.TenantID().String(), productID.String(), gen,
		variantID.String(), locationID.String(), string(priceType),
	}, ":")
}

func (r *resolver) invalidate(ctx context.Context, productID uuid.UUID) {
	if err := r.cache.Set(ctx, r.generationKey(productID), []byte(uuid.NewString()), 0); err != nil {
		r.logg.Error(r.logg.WithField(ctx, "product_id", productID.String()), "price cache invalidation failed", err)
	}
}
