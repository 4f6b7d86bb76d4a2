package handler

import (
	"errors"

	"pointsledger/internal/ledger"
	"pointsledger/internal/pkg/limiter"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
)

// wrapLedgerError gives a ledger failure the errorx kind RestAbort renders.
// Business outcomes become client errors; only storage trouble is a 5xx.
func wrapLedgerError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, limiter.ErrRateLimited) {
		return errorx.Wrap(err, errorx.RateLimiting)
	}
	if errors.Is(err, errRedemptionNotOwned) {
		return errorx.Wrap(err, errorx.NotExist)
	}

	switch ledger.KindOf(err) {
	case ledger.KindInvalidAmount, ledger.KindInvalidMetadata, ledger.KindInvalidReferral:
		return errorx.Wrap(err, errorx.Validation)
	case ledger.KindInsufficientPoints, ledger.KindOutOfStock, ledger.KindInvalidState, ledger.KindDuplicateReferral:
		return errorx.Wrap(err, errorx.Invalid)
	case ledger.KindAccountNotFound, ledger.KindNotFound:
		return errorx.Wrap(err, errorx.NotExist)
	}

	return errorx.Wrap(err, errorx.Service)
}

var errRedemptionNotOwned = errors.New("loyalty: redemption not found")
