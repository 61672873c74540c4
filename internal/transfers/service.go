// Package transfers moves stock between two locations of a tenant as a pair of
// ledger movements that commit together or not at all.
package transfers

import (
	"context"
	"fmt"
	"sort"

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

// MovementLedger is the slice of the ledger a transfer writes through.
type MovementLedger interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordMovementInput) (*models.StockMovement, error)
	CurrentStock(ctx context.Context, tx *gorm.DB, key models.StockKey) (int, error)
}

// SummaryLocker row-locks a summary before its stock is checked.
type SummaryLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
}

// Item is one product moved. A nil VariantID resolves to the default variant.
type Item struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type TransferInput struct {
	SourceLocationID uuid.UUID  `json:"source_location_id" validate:"required"`
	DestLocationID   uuid.UUID  `json:"dest_location_id" validate:"required"`
	Items            []Item     `json:"items" validate:"min=1,dive"`
	Notes            *string    `json:"notes"`
	CreatedBy        *uuid.UUID `json:"created_by"`
}

// TransferResult lists the movements written under one reference id.
type TransferResult struct {
	ReferenceID uuid.UUID              `json:"reference_id"`
	Movements   []models.StockMovement `json:"movements"`
}

// Service performs transfers.
type Service interface {
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
}

type service struct {
	tenantID uuid.UUID
	tx       txRunner
	catalog  catalog.Gateway
	ledger   MovementLedger
	locker   SummaryLocker
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewService wires the transfer coordinator for tenantID.
func NewService(tenantID uuid.UUID, tx txRunner, gateway catalog.Gateway, ledger MovementLedger, locker SummaryLocker, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("catalog gateway required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if locker == nil {
		return nil, fmt.Errorf("summary locker required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tenantID: tenantID,
		tx:       tx,
		catalog:  gateway,
		ledger:   ledger,
		locker:   locker,
		outbox:   outbox,
		logg:     logg,
	}, nil
}

type line struct {
	productID uuid.UUID
	variantID uuid.UUID
	quantity  int
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (result *TransferResult, err error) {
	ctx, span := tracing.Start(ctx, "transfers.transfer",
		tracing.AttrTenantID.String(s.tenantID.String()),
		tracing.AttrLocationID.String(input.SourceLocationID.String()),
	)
	defer func() { tracing.End(span, err) }()

	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.SourceLocationID == input.DestLocationID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination locations must differ")
	}

	referenceID := uuid.New()
	result = &TransferResult{ReferenceID: referenceID}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		gateway := s.catalog.WithTx(tx)
		if _, err := gateway.GetLocation(ctx, input.SourceLocationID); err != nil {
			return err
		}
		if _, err := gateway.GetLocation(ctx, input.DestLocationID); err != nil {
			return err
		}

		lines, err := s.mergeLines(ctx, gateway, input.Items)
		if err != nil {
			return err
		}

		for _, l := range lines {
			source := models.StockKey{TenantID: s.tenantID, LocationID: input.SourceLocationID, ProductID: l.productID, VariantID: l.variantID}
			if _, err := s.locker.Lock(ctx, tx, source); err != nil {
				return err
			}
			onHand, err := s.ledger.CurrentStock(ctx, tx, source)
			if err != nil {
				return err
			}
			if onHand < l.quantity {
				return pkgerrors.InsufficientStock(onHand, l.quantity)
			}
		}

		for _, l := range lines {
			out, err := s.ledger.Record(ctx, tx, s.movement(input, l, input.SourceLocationID, enums.MovementTypeTransferOut, -l.quantity, referenceID))
			if err != nil {
				return err
			}
			in, err := s.ledger.Record(ctx, tx, s.movement(input, l, input.DestLocationID, enums.MovementTypeTransferIn, l.quantity, referenceID))
			if err != nil {
				return err
			}
			result.Movements = append(result.Movements, *out, *in)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      s.tenantID,
			EventType:     enums.EventInventoryTransferred,
			AggregateType: enums.AggregateTransfer,
			AggregateID:   referenceID,
			Actor:         actor(input.CreatedBy),
			Data:          transferredEvent(referenceID, input, lines),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"reference_id":       referenceID.String(),
		"source_location_id": input.SourceLocationID.String(),
		"dest_location_id":   input.DestLocationID.String(),
		"items":              len(result.Movements) / 2,
	}), "inventory transferred")
	return result, nil
}

// mergeLines resolves variants and folds repeated (product, variant) items so
// the stock check sees the full quantity. Lines are sorted to keep lock order stable.
func (s *service) mergeLines(ctx context.Context, gateway catalog.Gateway, items []Item) ([]line, error) {
	index := map[[2]uuid.UUID]int{}
	var lines []line
	for _, item := range items {
		variantID, err := gateway.ResolveVariant(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return nil, err
		}
		k := [2]uuid.UUID{item.ProductID, variantID}
		if i, ok := index[k]; ok {
			lines[i].quantity += item.Quantity
			continue
		}
		index[k] = len(lines)
		lines = append(lines, line{productID: item.ProductID, variantID: variantID, quantity: item.Quantity})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].productID != lines[j].productID {
			return lines[i].productID.String() < lines[j].productID.String()
		}
		return lines[i].variantID.String() < lines[j].variantID.String()
	})
	return lines, nil
}

func (s *service) movement(input TransferInput, l line, location uuid.UUID, mt enums.MovementType, qty int, referenceID uuid.UUID) ledger.RecordMovementInput {
	ref := referenceID
	return ledger.RecordMovementInput{
		LocationID:    location,
		ProductID:     l.productID,
		VariantID:     l.variantID,
		MovementType:  mt,
		Quantity:      qty,
		ReferenceType: enums.ReferenceTypeTransfer,
		ReferenceID:   &ref,
		Notes:         input.Notes,
		CreatedBy:     input.CreatedBy,
	}
}

func transferredEvent(referenceID uuid.UUID, input TransferInput, lines []line) payloads.InventoryTransferredEvent {
	items := make([]payloads.TransferItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, payloads.TransferItem{ProductID: l.productID, VariantID: l.variantID, Quantity: l.quantity})
	}
	return payloads.InventoryTransferredEvent{
		ReferenceID:      referenceID,
		SourceLocationID: input.SourceLocationID,
		DestLocationID:   input.DestLocationID,
		Items:            items,
	}
}

func actor(userID *uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Source: "transfers"}
}
