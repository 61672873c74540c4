// Package payments applies gateway payment notifications to orders. A
// payment is recorded once per (tenant, gateway reference); later
// notifications for the same reference may only move its status forward.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/outbox/payloads"
	"github.com/angelmondragon/stockcore/pkg/redis"
	"github.com/angelmondragon/stockcore/pkg/tracing"
	"github.com/angelmondragon/stockcore/pkg/validate"
)

const idempotencyScope = "payment"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notification is a payment update reported by the gateway.
type Notification struct {
	OrderID          uuid.UUID           `json:"order_id" validate:"required"`
	GatewayReference string              `json:"gateway_reference" validate:"required,max=255"`
	Status           enums.PaymentStatus `json:"status" validate:"required"`
	Amount           decimal.Decimal     `json:"amount"`
}

// Collaborator records payment notifications.
type Collaborator interface {
	// Apply stores the notification inside tx (or its own transaction when tx
	// is nil). duplicate is true when nothing changed: an exact replay of a
	// recorded (reference, status) or a status older than the recorded one.
	Apply(ctx context.Context, tx *gorm.DB, n Notification) (payment *models.Payment, duplicate bool, err error)
}

type collaborator struct {
	repo   Repository
	tx     txRunner
	guard  redis.IdempotencyStore
	ttl    time.Duration
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewCollaborator builds the payment collaborator. guard may be nil, in which
// case the unique index alone deduplicates.
func NewCollaborator(repo Repository, tx txRunner, guard redis.IdempotencyStore, cfg config.PaymentsConfig, events outboxPublisher, logg *logger.Logger) (Collaborator, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &collaborator{repo: repo, tx: tx, guard: guard, ttl: ttl, outbox: events, logg: logg}, nil
}

func (c *collaborator) Apply(ctx context.Context, tx *gorm.DB, n Notification) (payment *models.Payment, duplicate bool, err error) {
	ctx, span := tracing.Start(ctx, "payments.apply",
		tracing.AttrTenantID.String(c.repo.TenantID().String()),
		tracing.AttrOrderID.String(n.OrderID.String()),
	)
	defer func() { tracing.End(span, err) }()

	n.GatewayReference = strings.TrimSpace(n.GatewayReference)
	if err := validate.Struct(n); err != nil {
		return nil, false, err
	}
	if !n.Status.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status").
			WithDetails(map[string]any{"status": n.Status})
	}
	if n.Amount.IsNegative() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	key, claimed := c.claim(ctx, n)
	if !claimed && key != "" {
		seen, err := c.replayed(ctx, tx, n)
		if err != nil || seen != nil {
			return seen, seen != nil, err
		}
	}

	if tx == nil {
		err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
			payment, duplicate, err = c.apply(ctx, tx, n)
			return err
		})
	} else {
		payment, duplicate, err = c.apply(ctx, tx, n)
	}
	if err != nil {
		c.unclaim(ctx, key, claimed)
		return nil, false, err
	}
	return payment, duplicate, nil
}

// claim sets the redis marker for (tenant, reference, status). key is empty
// when no guard is configured or redis is unavailable.
func (c *collaborator) claim(ctx context.Context, n Notification) (string, bool) {
	if c.guard == nil {
		return "", false
	}
	key := c.guard.IdempotencyKey(idempotencyScope, c.repo.TenantID().String()+":"+n.GatewayReference+":"+string(n.Status))
	ok, err := c.guard.SetNX(ctx, key, n.OrderID.String(), c.ttl)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "gateway_reference", n.GatewayReference), "payment idempotency guard unavailable")
		return "", false
	}
	return key, ok
}

// replayed answers a lost claim from the stored payment without opening a
// write transaction. A marker with no matching row belongs to a claimant that
// has not committed yet, so the database decides.
func (c *collaborator) replayed(ctx context.Context, tx *gorm.DB, n Notification) (*models.Payment, error) {
	repo := c.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	existing, err := repo.FindByReference(ctx, n.GatewayReference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if existing == nil || existing.Status != n.Status {
		return nil, nil
	}
	if existing.OrderID != n.OrderID {
		return nil, conflictErr(n)
	}
	c.logg.Debug(c.logg.WithField(ctx, "gateway_reference", n.GatewayReference), "payment notification replay skipped")
	return existing, nil
}

func (c *collaborator) unclaim(ctx context.Context, key string, claimed bool) {
	if !claimed {
		return
	}
	if err := c.guard.Del(ctx, key); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "key", key), "release payment idempotency key failed")
	}
}

func (c *collaborator) apply(ctx context.Context, tx *gorm.DB, n Notification) (*models.Payment, bool, error) {
	repo := c.repo.WithTx(tx)

	existing, err := repo.FindByReference(ctx, n.GatewayReference)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if existing != nil {
		return c.advance(ctx, tx, repo, existing, n)
	}

	found, err := repo.OrderExists(ctx, n.OrderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !found {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	payment := &models.Payment{
		OrderID:          n.OrderID,
		GatewayReference: n.GatewayReference,
		Status:           n.Status,
		Amount:           n.Amount.Round(2),
	}
	inserted, err := repo.InsertIfAbsent(ctx, payment)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
	}
	if !inserted {
		existing, err := repo.FindByReference(ctx, n.GatewayReference)
		if err != nil || existing == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
		}
		return c.advance(ctx, tx, repo, existing, n)
	}

	if err := c.emit(ctx, tx, payment); err != nil {
		return nil, false, err
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_id":        payment.ID.String(),
		"order_id":          payment.OrderID.String(),
		"gateway_reference": payment.GatewayReference,
		"status":            payment.Status,
	}), "payment recorded")
	return payment, false, nil
}

// advance handles a notification for a reference that is already recorded.
// Only a newer status changes the row; equal or older statuses are replays.
func (c *collaborator) advance(ctx context.Context, tx *gorm.DB, repo Repository, existing *models.Payment, n Notification) (*models.Payment, bool, error) {
	if existing.OrderID != n.OrderID {
		return nil, false, conflictErr(n)
	}
	if existing.Status == n.Status || !n.Status.Supersedes(existing.Status) {
		return existing, true, nil
	}

	previous := existing.Status
	moved, err := repo.AdvanceStatus(ctx, existing.ID, previous, n.Status)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
	}
	if !moved {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "payment status changed concurrently").
			WithDetails(map[string]any{"gateway_reference": n.GatewayReference})
	}
	updated := *existing
	updated.Status = n.Status
	if err := c.emit(ctx, tx, &updated); err != nil {
		return nil, false, err
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_id":        updated.ID.String(),
		"gateway_reference": updated.GatewayReference,
		"previous_status":   previous,
		"status":            updated.Status,
	}), "payment status advanced")
	return &updated, false, nil
}

func (c *collaborator) emit(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      c.repo.TenantID(),
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{Source: "payments"},
		Data: payloads.PaymentRecordedEvent{
			PaymentID:        payment.ID,
			OrderID:          payment.OrderID,
			GatewayReference: payment.GatewayReference,
			Status:           payment.Status,
			Amount:           payment.Amount.StringFixed(2),
		},
	})
}

func conflictErr(n Notification) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "gateway reference already applied to another order").
		WithDetails(map[string]any{"gateway_reference": n.GatewayReference})
}
