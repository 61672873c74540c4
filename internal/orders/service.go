// Package orders drives the order lifecycle: pricing and reserving stock on
// creation, committing ledger movements on fulfillment, and unwinding stock on
// cancellation.
package orders

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
	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/payments"
	"github.com/angelmondragon/stockcore/internal/pricing"
	"github.com/angelmondragon/stockcore/internal/reservations"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/outbox/payloads"
	"github.com/angelmondragon/stockcore/pkg/pagination"
	"github.com/angelmondragon/stockcore/pkg/tracing"
	"github.com/angelmondragon/stockcore/pkg/validate"
)

const cancellationNote = "reversal: order cancelled"

// Service is the order orchestrator.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	ApplyPayment(ctx context.Context, update PaymentUpdate) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter, params pagination.Params) (*pagination.Page[models.Order], error)
}

// ServiceParams carries the collaborators of the orchestrator.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Catalog      catalog.Gateway
	Prices       pricing.Resolver
	Reservations reservationManager
	Ledger       movementRecorder
	Payments     paymentCollaborator
	Outbox       outboxPublisher
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	tx           txRunner
	catalog      catalog.Gateway
	prices       pricing.Resolver
	reservations reservationManager
	ledger       movementRecorder
	payments     paymentCollaborator
	outbox       outboxPublisher
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog gateway required")
	case params.Prices == nil:
		return nil, fmt.Errorf("price resolver required")
	case params.Reservations == nil:
		return nil, fmt.Errorf("reservation manager required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment collaborator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		catalog:      params.Catalog,
		prices:       params.Prices,
		reservations: params.Reservations,
		ledger:       params.Ledger,
		payments:     params.Payments,
		outbox:       params.Outbox,
		logg:         logg,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.create",
		tracing.AttrTenantID.String(s.repo.TenantID().String()),
		tracing.AttrLocationID.String(input.LocationID.String()),
	)
	defer func() { tracing.End(span, err) }()

	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.OrderType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order type %q", input.OrderType))
	}
	if input.PriceType != "" && !input.PriceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid price type %q", input.PriceType))
	}
	for i, line := range input.Lines {
		if line.TaxRate.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must not be negative").
				WithDetails(map[string]any{"line": i})
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
				WithDetails(map[string]any{"line": i})
		}
	}
	if input.Payment != nil {
		input.Payment.GatewayReference = strings.TrimSpace(input.Payment.GatewayReference)
		if err := validate.Struct(input.Payment); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gateway := s.catalog.WithTx(tx)
		if _, err := gateway.GetLocation(ctx, input.LocationID); err != nil {
			return err
		}

		now := s.now()
		order = &models.Order{
			ID:            uuid.New(),
			UserID:        input.UserID,
			LocationID:    input.LocationID,
			OrderType:     input.OrderType,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusUnpaid,
			Notes:         input.Notes,
			CreatedBy:     input.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		lines, err := s.priceLines(ctx, tx, gateway, order, input)
		if err != nil {
			return err
		}
		for _, line := range lines {
			order.SubtotalAmount = order.SubtotalAmount.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			order.TaxAmount = order.TaxAmount.Add(line.TaxAmount)
		}
		order.SubtotalAmount = order.SubtotalAmount.Round(2)
		order.TotalAmount = order.SubtotalAmount.Add(order.TaxAmount).Round(2)

		if input.OrderType.HoldsReservation() {
			if err := s.reservations.ReserveAll(ctx, tx, claims(lines)); err != nil {
				return err
			}
		}

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order lines")
		}
		order.Lines = lines

		if err := s.emit(ctx, tx, enums.EventOrderCreated, order, input.CreatedBy, createdEvent(order)); err != nil {
			return err
		}

		if input.Payment != nil {
			return s.applyPayment(ctx, tx, order, PaymentUpdate{
				OrderID:          order.ID,
				GatewayReference: input.Payment.GatewayReference,
				Status:           input.Payment.Status,
				Amount:           input.Payment.Amount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_type":   order.OrderType,
		"location_id":  order.LocationID.String(),
		"lines":        len(order.Lines),
		"total_amount": order.TotalAmount.StringFixed(2),
	}), "order created")
	return order, nil
}

// priceLines resolves variant and unit price for every input line. Provided
// prices on sales orders are checked against the resolved sale price; other
// order types carry the provided price (a purchase cost, a refund amount) as is.
func (s *service) priceLines(ctx context.Context, tx *gorm.DB, gateway catalog.Gateway, order *models.Order, input CreateOrderInput) ([]models.OrderLine, error) {
	prices := s.prices.WithTx(tx)
	lines := make([]models.OrderLine, 0, len(input.Lines))
	for i, in := range input.Lines {
		product, err := gateway.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not active").
				WithDetails(map[string]any{"line": i, "product_id": in.ProductID})
		}
		variantID, err := gateway.ResolveVariant(ctx, in.ProductID, in.VariantID)
		if err != nil {
			return nil, err
		}

		var unit decimal.Decimal
		switch {
		case in.UnitPrice != nil && order.OrderType != enums.OrderTypeSales:
			unit = *in.UnitPrice
		default:
			resolved, err := prices.Resolve(ctx, pricing.ResolveInput{
				ProductID:  in.ProductID,
				VariantID:  variantID,
				LocationID: order.LocationID,
				PriceType:  input.PriceType,
			})
			if err != nil {
				return nil, err
			}
			unit = resolved.SalePrice
			if in.UnitPrice != nil {
				if _, err := prices.Validate(ctx, *in.UnitPrice, resolved); err != nil {
					return nil, err
				}
				unit = *in.UnitPrice
			}
		}
		unit = unit.Round(2)

		gross := unit.Mul(decimal.NewFromInt(int64(in.Quantity)))
		tax := gross.Mul(in.TaxRate).Round(2)
		lines = append(lines, models.OrderLine{
			ID:         uuid.New(),
			TenantID:   s.repo.TenantID(),
			OrderID:    order.ID,
			ProductID:  in.ProductID,
			VariantID:  variantID,
			LocationID: order.LocationID,
			Quantity:   in.Quantity,
			UnitPrice:  unit,
			TaxAmount:  tax,
			LineTotal:  gross.Add(tax).Round(2),
			CreatedAt:  order.CreatedAt,
		})
	}
	return lines, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (order *models.Order, err error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Status))
	}
	if input.Status == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, CancelledBy: input.UpdatedBy})
	}

	ctx, span := tracing.Start(ctx, "orders.update_status",
		tracing.AttrTenantID.String(s.repo.TenantID().String()),
		tracing.AttrOrderID.String(input.OrderID.String()),
	)
	defer func() { tracing.End(span, err) }()

	var from enums.OrderStatus
	var committed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err = s.loadForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		if from == input.Status {
			return nil
		}
		if err := checkTransition(from, input.Status); err != nil {
			return err
		}

		now := s.now()
		if input.Status.IsFulfillment() && !order.InventoryUpdated {
			committed, err = s.commitInventory(ctx, tx, repo, order, input.UpdatedBy, now)
			if err != nil {
				return err
			}
		}

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": input.Status, "updated_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		order.Status = input.Status
		order.UpdatedAt = now

		return s.emit(ctx, tx, enums.EventOrderStatusChanged, order, input.UpdatedBy, payloads.OrderStatusChangedEvent{
			OrderID:            order.ID,
			From:               from,
			To:                 input.Status,
			InventoryCommitted: committed,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":            order.ID.String(),
		"from":                from,
		"to":                  order.Status,
		"inventory_committed": committed,
	}), "order status updated")
	return order, nil
}

// commitInventory writes the order's ledger movements exactly once, guarded by
// the inventory_updated flag, then returns a sales order's reservation.
func (s *service) commitInventory(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, actor *uuid.UUID, now time.Time) (bool, error) {
	flipped, err := repo.MarkInventoryCommitted(ctx, order.ID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark inventory committed")
	}
	if !flipped {
		order.InventoryUpdated = true
		return false, nil
	}

	movementType, sign := order.OrderType.CommitMovement()
	if sign == 0 {
		return false, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("order type %q has no commit movement", order.OrderType))
	}
	lines, err := s.lines(ctx, repo, order)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if _, err := s.ledger.Record(ctx, tx, orderMovement(order, line, movementType, sign*line.Quantity, nil, actor)); err != nil {
			return false, err
		}
	}
	if order.OrderType.HoldsReservation() {
		if err := s.reservations.ReleaseAll(ctx, tx, claims(lines)); err != nil {
			return false, err
		}
	}
	order.InventoryUpdated = true
	return true, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.cancel",
		tracing.AttrTenantID.String(s.repo.TenantID().String()),
		tracing.AttrOrderID.String(input.OrderID.String()),
	)
	defer func() { tracing.End(span, err) }()

	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	var released, reversed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err = s.loadForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if order.InventoryUpdated && order.OrderType != enums.OrderTypeSales {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "committed purchase and return orders cannot be cancelled").
				WithDetails(map[string]any{"order_type": order.OrderType, "status": order.Status})
		}

		lines, err := s.lines(ctx, repo, order)
		if err != nil {
			return err
		}
		switch {
		case order.InventoryUpdated:
			note := cancellationNote
			for _, line := range lines {
				if _, err := s.ledger.Record(ctx, tx, orderMovement(order, line, enums.MovementTypeReturn, line.Quantity, &note, input.CancelledBy)); err != nil {
					return err
				}
			}
			reversed = true
		case order.OrderType.HoldsReservation():
			if err := s.reservations.ReleaseAll(ctx, tx, claims(lines)); err != nil {
				return err
			}
			released = true
		}

		now := s.now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now

		return s.emit(ctx, tx, enums.EventOrderCancelled, order, input.CancelledBy, payloads.OrderCancelledEvent{
			OrderID:             order.ID,
			OrderType:           order.OrderType,
			ReservationReleased: released,
			StockReversed:       reversed,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":             order.ID.String(),
		"reservation_released": released,
		"stock_reversed":       reversed,
	}), "order cancelled")
	return order, nil
}

func (s *service) ApplyPayment(ctx context.Context, update PaymentUpdate) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.apply_payment",
		tracing.AttrTenantID.String(s.repo.TenantID().String()),
		tracing.AttrOrderID.String(update.OrderID.String()),
	)
	defer func() { tracing.End(span, err) }()

	update.GatewayReference = strings.TrimSpace(update.GatewayReference)
	if err := validate.Struct(update); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err = s.loadForUpdate(ctx, s.repo.WithTx(tx), update.OrderID)
		if err != nil {
			return err
		}
		return s.applyPayment(ctx, tx, order, update)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) applyPayment(ctx context.Context, tx *gorm.DB, order *models.Order, update PaymentUpdate) error {
	payment, duplicate, err := s.payments.Apply(ctx, tx, payments.Notification{
		OrderID:          order.ID,
		GatewayReference: update.GatewayReference,
		Status:           update.Status,
		Amount:           update.Amount,
	})
	if err != nil {
		return err
	}
	if duplicate {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"order_id":          order.ID.String(),
			"gateway_reference": update.GatewayReference,
		}), "duplicate payment notification ignored")
		return nil
	}

	if !payment.Status.Supersedes(order.PaymentStatus) {
		s.logg.Info(s.logg.WithFields(s.logg.WithOrder(ctx, order.ID), map[string]any{
			"payment_status":    order.PaymentStatus,
			"notified_status":   payment.Status,
			"gateway_reference": payment.GatewayReference,
		}), "payment recorded without regressing order status")
		return nil
	}

	now := s.now()
	reference := payment.GatewayReference
	if err := s.repo.WithTx(tx).UpdateOrder(ctx, order.ID, map[string]any{
		"payment_status":    payment.Status,
		"payment_reference": reference,
		"updated_at":        now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
	}
	order.PaymentStatus = payment.Status
	order.PaymentReference = &reference
	order.UpdatedAt = now
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, filter OrderFilter, params pagination.Params) (*pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page := pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

func (s *service) loadForUpdate(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) lines(ctx context.Context, repo Repository, order *models.Order) ([]models.OrderLine, error) {
	lines, err := repo.FindLines(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
	}
	order.Lines = lines
	return lines, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor *uuid.UUID, data any) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      s.repo.TenantID(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor, Source: "orders"},
		Data:          data,
	})
}

// checkTransition allows forward moves through the fulfillment statuses.
// Terminal statuses accept nothing but cancellation, which goes through Cancel.
func checkTransition(from, to enums.OrderStatus) error {
	if from.IsTerminal() || statusRank(to) <= statusRank(from) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return nil
}

func statusRank(status enums.OrderStatus) int {
	switch status {
	case enums.OrderStatusPending:
		return 0
	case enums.OrderStatusProcessing:
		return 1
	case enums.OrderStatusShipped:
		return 2
	case enums.OrderStatusDelivered:
		return 3
	case enums.OrderStatusCompleted:
		return 4
	default:
		return -1
	}
}

func claims(lines []models.OrderLine) []reservations.Claim {
	out := make([]reservations.Claim, 0, len(lines))
	for _, line := range lines {
		out = append(out, reservations.Claim{Key: line.Key(), Quantity: line.Quantity})
	}
	return out
}

func orderMovement(order *models.Order, line models.OrderLine, movementType enums.MovementType, qty int, notes *string, actor *uuid.UUID) ledger.RecordMovementInput {
	ref := order.ID
	return ledger.RecordMovementInput{
		LocationID:    line.LocationID,
		ProductID:     line.ProductID,
		VariantID:     line.VariantID,
		MovementType:  movementType,
		Quantity:      qty,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   &ref,
		Notes:         notes,
		CreatedBy:     actor,
	}
}

func createdEvent(order *models.Order) payloads.OrderCreatedEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, payloads.OrderLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:     order.ID,
		LocationID:  order.LocationID,
		OrderType:   order.OrderType,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Lines:       lines,
	}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
