package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{ErrInvalidAmount, KindInvalidAmount},
		{fmt.Errorf("redeem: %w", ErrInsufficientPoints), KindInsufficientPoints},
		{ErrRewardNotFound, KindNotFound},
		{ErrRedemptionExpired, KindInvalidState},
		{ErrSelfReferral, KindInvalidReferral},
		{ErrAccountLocked, KindStorageUnavailable},
		{storageError(errors.New("i/o timeout")), KindStorageUnavailable},
		{errors.New("boom"), KindOther},
		{nil, KindOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err), "%v", tt.err)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrAccountLocked))
	assert.True(t, Retryable(storageError(errors.New("connection reset"))))
	assert.False(t, Retryable(ErrInsufficientPoints))
	assert.False(t, Retryable(ErrDuplicateReferral))
	assert.Nil(t, storageError(nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "out_of_stock", KindOutOfStock.String())
	assert.Equal(t, "other", Kind(99).String())
}
