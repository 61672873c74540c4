// Package adjustments reconciles recorded stock with a physical count by
// writing at most one corrective movement.
package adjustments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/catalog"
	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/outbox/payloads"
	"github.com/angelmondragon/stockcore/pkg/tracing"
	"github.com/angelmondragon/stockcore/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type movementLedger interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordMovementInput) (*models.StockMovement, error)
	CurrentStock(ctx context.Context, tx *gorm.DB, key models.StockKey) (int, error)
}

type summaryLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
}

type AdjustInput struct {
	LocationID       uuid.UUID  `json:"location_id" validate:"required"`
	ProductID        uuid.UUID  `json:"product_id" validate:"required"`
	VariantID        uuid.UUID  `json:"variant_id"`
	PhysicalQuantity int        `json:"physical_quantity" validate:"gte=0"`
	Reason           string     `json:"reason" validate:"required"`
	CreatedBy        *uuid.UUID `json:"created_by"`
}

// AdjustResult reports the correction. MovementID is nil when the count
// already matched the ledger.
type AdjustResult struct {
	MovementID       *uuid.UUID         `json:"movement_id,omitempty"`
	MovementType     enums.MovementType `json:"movement_type,omitempty"`
	VariantID        uuid.UUID          `json:"variant_id"`
	PreviousQuantity int                `json:"previous_quantity"`
	PhysicalQuantity int                `json:"physical_quantity"`
	Difference       int                `json:"difference"`
}

type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error)
}

type service struct {
	tenantID uuid.UUID
	tx       txRunner
	catalog  catalog.Gateway
	ledger   movementLedger
	locker   summaryLocker
	outbox   outboxPublisher
	logg     *logger.Logger
}

func NewService(tenantID uuid.UUID, tx txRunner, gateway catalog.Gateway, stock movementLedger, locker summaryLocker, events outboxPublisher, logg *logger.Logger) (Service, error) {
	switch {
	case tenantID == uuid.Nil:
		return nil, fmt.Errorf("tenant id required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case gateway == nil:
		return nil, fmt.Errorf("catalog gateway required")
	case stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case locker == nil:
		return nil, fmt.Errorf("summary locker required")
	case events == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{tenantID: tenantID, tx: tx, catalog: gateway, ledger: stock, locker: locker, outbox: events, logg: logg}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (result *AdjustResult, err error) {
	ctx, span := tracing.Start(ctx, "adjustments.adjust",
		tracing.AttrTenantID.String(s.tenantID.String()),
		tracing.AttrLocationID.String(input.LocationID.String()),
		tracing.AttrProductID.String(input.ProductID.String()),
	)
	defer func() { tracing.End(span, err) }()

	input.Reason = strings.TrimSpace(input.Reason)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		gateway := s.catalog.WithTx(tx)
		if _, err := gateway.GetLocation(ctx, input.LocationID); err != nil {
			return err
		}
		variantID, err := gateway.ResolveVariant(ctx, input.ProductID, input.VariantID)
		if err != nil {
			return err
		}
		key := models.StockKey{TenantID: s.tenantID, LocationID: input.LocationID, ProductID: input.ProductID, VariantID: variantID}
		if _, err := s.locker.Lock(ctx, tx, key); err != nil {
			return err
		}
		recorded, err := s.ledger.CurrentStock(ctx, tx, key)
		if err != nil {
			return err
		}

		result = &AdjustResult{
			VariantID:        variantID,
			PreviousQuantity: recorded,
			PhysicalQuantity: input.PhysicalQuantity,
			Difference:       input.PhysicalQuantity - recorded,
		}
		if result.Difference == 0 {
			return nil
		}

		result.MovementType = enums.MovementTypeAdjustmentIn
		if result.Difference < 0 {
			result.MovementType = enums.MovementTypeAdjustmentOut
		}
		referenceID := uuid.New()
		reason := input.Reason
		movement, err := s.ledger.Record(ctx, tx, ledger.RecordMovementInput{
			LocationID:    input.LocationID,
			ProductID:     input.ProductID,
			VariantID:     variantID,
			MovementType:  result.MovementType,
			Quantity:      result.Difference,
			ReferenceType: enums.ReferenceTypeAdjustment,
			ReferenceID:   &referenceID,
			Notes:         &reason,
			CreatedBy:     input.CreatedBy,
		})
		if err != nil {
			return err
		}
		result.MovementID = &movement.ID

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      s.tenantID,
			EventType:     enums.EventInventoryAdjusted,
			AggregateType: enums.AggregateInventory,
			AggregateID:   movement.ID,
			Actor:         &outbox.ActorRef{UserID: input.CreatedBy, Source: "adjustments"},
			Data: payloads.InventoryAdjustedEvent{
				MovementID:       movement.ID,
				LocationID:       input.LocationID,
				ProductID:        input.ProductID,
				VariantID:        variantID,
				MovementType:     result.MovementType,
				Difference:       result.Difference,
				PhysicalQuantity: input.PhysicalQuantity,
				Reason:           reason,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust inventory")
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"location_id": input.LocationID.String(),
		"product_id":  input.ProductID.String(),
		"variant_id":  result.VariantID.String(),
		"difference":  result.Difference,
	})
	if result.MovementID == nil {
		s.logg.Debug(logCtx, "physical count matches ledger")
	} else {
		s.logg.Info(logCtx, "inventory adjusted")
	}
	return result, nil
}
