package models

import (
	"errors"
)

var ErrMetadataMismatch = errors.New("metadata does not match source")

type PurchaseMeta struct {
	OrderID string  `json:"order_id"`
	Spend   float64 `json:"spend"`
}

type ReferralMeta struct {
	Code      string `json:"code"`
	RefereeID string `json:"referee_id"`
}

type ShareMeta struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type ReviewMeta struct {
	ReviewID string `json:"review_id"`
	Rating   int    `json:"rating"`
}

// EarnMetadata carries at most one payload, and it must belong to the
// transaction source. Signup and daily login carry none.
type EarnMetadata struct {
	Purchase *PurchaseMeta `json:"purchase,omitempty"`
	Referral *ReferralMeta `json:"referral,omitempty"`
	Share    *ShareMeta    `json:"share,omitempty"`
	Review   *ReviewMeta   `json:"review,omitempty"`
}

func (meta *EarnMetadata) payloads() int {
	n := 0
	if meta.Purchase != nil {
		n++
	}
	if meta.Referral != nil {
		n++
	}
	if meta.Share != nil {
		n++
	}
	if meta.Review != nil {
		n++
	}
	return n
}

func (meta *EarnMetadata) Validate(source Source) error {
	if meta == nil {
		return nil
	}

	n := meta.payloads()
	if n == 0 {
		return nil
	}
	if n > 1 {
		return ErrMetadataMismatch
	}

	switch {
	case meta.Purchase != nil && source == SOURCE_PURCHASE:
	case meta.Referral != nil && source == SOURCE_REFERRAL:
	case meta.Share != nil && source == SOURCE_SOCIAL_SHARE:
	case meta.Review != nil && source == SOURCE_REVIEW:
	default:
		return ErrMetadataMismatch
	}

	return nil
}

// ReferenceID is the external id the payload points at, if any.
func (meta *EarnMetadata) ReferenceID() *string {
	if meta == nil {
		return nil
	}

	var ref string
	switch {
	case meta.Purchase != nil:
		ref = meta.Purchase.OrderID
	case meta.Referral != nil:
		ref = meta.Referral.RefereeID
	case meta.Share != nil:
		ref = meta.Share.URL
	case meta.Review != nil:
		ref = meta.Review.ReviewID
	}

	if ref == "" {
		return nil
	}
	return &ref
}
