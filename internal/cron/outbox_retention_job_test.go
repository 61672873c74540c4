package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/dbtest"
	"github.com/angelmondragon/stockcore/pkg/enums"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/outbox"
)

func TestOutboxRetentionDeletesOnlyOldPublishedRows(t *testing.T) {
	db := dbtest.Open(t, "cron_retention")
	repo := outbox.NewRepository(db)
	svc := outbox.NewService(repo, logger.Nop())
	ctx := context.Background()
	tenant := uuid.New()

	emit := func() uuid.UUID {
		id := uuid.New()
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				TenantID:      tenant,
				EventType:     enums.EventInventoryAdjusted,
				AggregateType: enums.AggregateInventory,
				AggregateID:   id,
				Data:          map[string]any{"id": id},
			})
		}))
		return id
	}
	oldPublished := emit()
	freshPublished := emit()
	oldPending := emit()

	now := time.Now().UTC()
	setPublished := func(aggregate uuid.UUID, at *time.Time, created time.Time) {
		require.NoError(t, db.Exec(
			"UPDATE outbox_events SET published_at = ?, created_at = ? WHERE aggregate_id = ?",
			at, created, aggregate,
		).Error)
	}
	oldAt := now.AddDate(0, 0, -40)
	freshAt := now.Add(-time.Hour)
	setPublished(oldPublished, &oldAt, oldAt)
	setPublished(freshPublished, &freshAt, freshAt)
	setPublished(oldPending, nil, oldAt)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.Nop(),
		DB:            pkgdb.NewFromGorm(db),
		Repository:    repo,
		RetentionDays: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "outbox-retention", job.Name())
	require.NoError(t, job.Run(ctx))

	for id, want := range map[uuid.UUID]int{oldPublished: 0, freshPublished: 1, oldPending: 1} {
		rows, err := repo.ListByAggregate(ctx, enums.AggregateInventory, id)
		require.NoError(t, err)
		assert.Len(t, rows, want)
	}
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	db := dbtest.Open(t, "cron_retention_validate")
	runner := pkgdb.NewFromGorm(db)
	repo := outbox.NewRepository(db)

	cases := []OutboxRetentionJobParams{
		{DB: runner, Repository: repo},
		{Logger: logger.Nop(), Repository: repo},
		{Logger: logger.Nop(), DB: runner},
	}
	for _, params := range cases {
		_, err := NewOutboxRetentionJob(params)
		assert.Error(t, err)
	}

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: runner, Repository: repo})
	require.NoError(t, err)
	assert.Equal(t, defaultOutboxRetentionDays, job.(*outboxRetentionJob).days)
}
