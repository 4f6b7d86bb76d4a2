package ledger

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindOther Kind = iota
	KindInvalidAmount
	KindInsufficientPoints
	KindOutOfStock
	KindInvalidState
	KindDuplicateReferral
	KindAccountNotFound
	KindStorageUnavailable
	KindNotFound
	KindInvalidReferral
	KindInvalidMetadata
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientPoints:
		return "insufficient_points"
	case KindOutOfStock:
		return "out_of_stock"
	case KindInvalidState:
		return "invalid_state"
	case KindDuplicateReferral:
		return "duplicate_referral"
	case KindAccountNotFound:
		return "account_not_found"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindNotFound:
		return "not_found"
	case KindInvalidReferral:
		return "invalid_referral"
	case KindInvalidMetadata:
		return "invalid_metadata"
	}
	return "other"
}

type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrInvalidAmount      = newError(KindInvalidAmount, "loyalty: invalid amount")
	ErrInsufficientPoints = newError(KindInsufficientPoints, "loyalty: insufficient points")
	ErrOutOfStock         = newError(KindOutOfStock, "loyalty: reward out of stock")
	ErrInvalidState       = newError(KindInvalidState, "loyalty: invalid redemption state")
	ErrDuplicateReferral  = newError(KindDuplicateReferral, "loyalty: duplicate referral")
	ErrAccountNotFound    = newError(KindAccountNotFound, "loyalty: account not found")
	ErrStorageUnavailable = newError(KindStorageUnavailable, "loyalty: storage unavailable")
	ErrNotFound           = newError(KindNotFound, "loyalty: not found")
	ErrInvalidReferral    = newError(KindInvalidReferral, "loyalty: invalid referral")
	ErrInvalidMetadata    = newError(KindInvalidMetadata, "loyalty: invalid metadata")
)

var (
	ErrRewardNotFound       = fmt.Errorf("%w: reward", ErrNotFound)
	ErrRedemptionNotFound   = fmt.Errorf("%w: redemption", ErrNotFound)
	ErrReferralCodeNotFound = fmt.Errorf("%w: referral code", ErrNotFound)
	ErrRedemptionExpired    = fmt.Errorf("%w: redemption expired", ErrInvalidState)
	ErrSelfReferral         = fmt.Errorf("%w: self referral", ErrInvalidReferral)
	ErrReferralCodeInactive = fmt.Errorf("%w: referral code inactive", ErrInvalidReferral)
	ErrAccountLocked        = fmt.Errorf("%w: account locked", ErrStorageUnavailable)
)

func storageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// KindOf reports the kind of a ledger error, KindOther for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// Retryable reports whether the caller may retry the call.
func Retryable(err error) bool {
	return KindOf(err) == KindStorageUnavailable
}
