package dbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stockcore/pkg/db/models"
)

func TestOpenIsQuietAndIsolated(t *testing.T) {
	a := Open(t, "dbtest")
	b := Open(t, "dbtest")
	assert.Equal(t, gormlogger.Discard, a.Config.Logger)

	fx := Seed(t, a, "2.50")
	var missing models.Product
	assert.Error(t, a.First(&missing, "id = ?", fx.TenantID).Error)

	var count int64
	require.NoError(t, b.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}
