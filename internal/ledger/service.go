// Package ledger is the append-only record of every stock change. Movements
// are signed by type and never updated; current stock is their sum.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/pagination"
	"github.com/angelmondragon/stockcore/pkg/tracing"
	"github.com/angelmondragon/stockcore/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Recomputer refreshes the cached summary for a key after a movement lands.
type Recomputer interface {
	Recompute(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
}

type movementRecorder interface {
	MovementRecorded(movementType string)
}

// Service records and reads stock movements.
type Service interface {
	// Record appends one movement and recomputes its summary in the same
	// transaction. With a nil tx the service opens its own.
	Record(ctx context.Context, tx *gorm.DB, input RecordMovementInput) (*models.StockMovement, error)
	CurrentStock(ctx context.Context, tx *gorm.DB, key models.StockKey) (int, error)
	ListMovements(ctx context.Context, filter MovementFilter, params pagination.Params) (*pagination.Page[models.StockMovement], error)
	ListByReference(ctx context.Context, referenceType enums.ReferenceType, referenceID uuid.UUID) ([]models.StockMovement, error)
}

// RecordMovementInput carries one signed ledger entry.
type RecordMovementInput struct {
	LocationID    uuid.UUID           `json:"location_id" validate:"required"`
	ProductID     uuid.UUID           `json:"product_id" validate:"required"`
	VariantID     uuid.UUID           `json:"variant_id" validate:"required"`
	MovementType  enums.MovementType  `json:"movement_type" validate:"required"`
	Quantity      int                 `json:"quantity" validate:"required"`
	ReferenceType enums.ReferenceType `json:"reference_type"`
	ReferenceID   *uuid.UUID          `json:"reference_id"`
	Notes         *string             `json:"notes"`
	CreatedBy     *uuid.UUID          `json:"created_by"`
}

type service struct {
	repo      Repository
	tx        txRunner
	aggregate Recomputer
	metrics   movementRecorder
	logg      *logger.Logger
}

// NewService wires a ledger service. metrics and logg may be nil.
func NewService(repo Repository, tx txRunner, aggregate Recomputer, metrics movementRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if aggregate == nil {
		return nil, fmt.Errorf("inventory aggregator required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, aggregate: aggregate, metrics: metrics, logg: logg}, nil
}

func validateMovement(input RecordMovementInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if !input.MovementType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", input.MovementType))
	}
	if !input.MovementType.AcceptsQuantity(input.Quantity) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity %d has the wrong sign for %s", input.Quantity, input.MovementType))
	}
	if input.ReferenceType != "" && input.ReferenceID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id required with reference type")
	}
	return nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordMovementInput) (movement *models.StockMovement, err error) {
	ctx, span := tracing.Start(ctx, "ledger.record",
		tracing.AttrLocationID.String(input.LocationID.String()),
		tracing.AttrProductID.String(input.ProductID.String()),
		tracing.AttrMovement.String(input.MovementType.String()),
		tracing.AttrQuantity.Int(input.Quantity),
	)
	defer func() { tracing.End(span, err) }()

	if err := validateMovement(input); err != nil {
		return nil, err
	}
	if tx == nil {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var recErr error
			movement, recErr = s.record(ctx, tx, input)
			return recErr
		})
		return movement, err
	}
	return s.record(ctx, tx, input)
}

func (s *service) record(ctx context.Context, tx *gorm.DB, input RecordMovementInput) (*models.StockMovement, error) {
	repo := s.repo.WithTx(tx)
	movement := &models.StockMovement{
		LocationID:    input.LocationID,
		ProductID:     input.ProductID,
		VariantID:     input.VariantID,
		MovementType:  input.MovementType,
		Quantity:      input.Quantity,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Notes:         input.Notes,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.Create(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append stock movement")
	}
	if _, err := s.aggregate.Recompute(ctx, tx, movement.Key()); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MovementRecorded(string(movement.MovementType))
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"movement_id":   movement.ID.String(),
		"movement_type": movement.MovementType,
		"quantity":      movement.Quantity,
		"location_id":   movement.LocationID.String(),
		"product_id":    movement.ProductID.String(),
		"variant_id":    movement.VariantID.String(),
	})
	s.logg.Debug(logCtx, "stock movement recorded")
	return movement, nil
}

func (s *service) CurrentStock(ctx context.Context, tx *gorm.DB, key models.StockKey) (int, error) {
	if !key.Valid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "tenant, location, product and variant ids are required")
	}
	if key.TenantID != s.repo.TenantID() {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory key not found for tenant")
	}
	total, err := s.repo.WithTx(tx).Sum(ctx, key)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum stock movements")
	}
	return total, nil
}

func (s *service) ListMovements(ctx context.Context, filter MovementFilter, params pagination.Params) (*pagination.Page[models.StockMovement], error) {
	if filter.MovementType != "" && !filter.MovementType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", filter.MovementType))
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock movements")
	}
	page := pagination.BuildPage(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return &page, nil
}

func (s *service) ListByReference(ctx context.Context, referenceType enums.ReferenceType, referenceID uuid.UUID) ([]models.StockMovement, error) {
	if referenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	rows, err := s.repo.ListByReference(ctx, referenceType, referenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock movements by reference")
	}
	return rows, nil
}
