package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
)

func TestResultFromInsufficientStock(t *testing.T) {
	res := ResultFromError(pkgerrors.InsufficientStock(5, 6))
	assert.False(t, res.Success)
	assert.Equal(t, "INSUFFICIENT_STOCK", res.Code)
	assert.Equal(t, "insufficient stock: available 5, requested 6", res.Message)
	require.NotNil(t, res.Available)
	require.NotNil(t, res.Requested)
	assert.Equal(t, 5, *res.Available)
	assert.Equal(t, 6, *res.Requested)
}

func TestResultHidesInternalDetail(t *testing.T) {
	res := ResultFromError(pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("pq: connection reset"), "record movement"))
	assert.Equal(t, "INTERNAL_ERROR", res.Code)
	assert.Equal(t, "internal error", res.Message)
	assert.True(t, res.Retryable)

	res = ResultFromError(errors.New("plain"))
	assert.Equal(t, "INTERNAL_ERROR", res.Code)
	assert.Nil(t, res.Available)
}

func TestResultKeepsNotFoundMessage(t *testing.T) {
	res := ResultFromError(pkgerrors.New(pkgerrors.CodeNotFound, "location not found"))
	assert.Equal(t, "location not found", res.Message)
}

func TestOKAndNil(t *testing.T) {
	assert.True(t, ResultFromError(nil).Success)
	res := OK(map[string]int{"stock": 3})
	assert.True(t, res.Success)
	assert.NotNil(t, res.Data)
	assert.True(t, IsCode(pkgerrors.New(pkgerrors.CodeConflict, "x"), pkgerrors.CodeConflict))
}
