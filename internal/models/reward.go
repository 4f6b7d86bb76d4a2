package models

const (
	REWARD_CATEGORY_DISCOUNT = "discount"
	REWARD_CATEGORY_VOUCHER  = "voucher"
	REWARD_CATEGORY_PRODUCT  = "product"
	REWARD_CATEGORY_DONATION = "donation"

	REWARD_TYPE_PERCENTAGE = "percentage"
	REWARD_TYPE_FIXED      = "fixed"
	REWARD_TYPE_ITEM       = "item"
)

type RewardItem struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	PointsCost        int      `json:"points_cost"`
	Category          string   `json:"category"`
	Type              string   `json:"type"`
	Value             float64  `json:"value"`
	IsLimited         bool     `json:"is_limited"`
	RemainingQuantity *int     `json:"remaining_quantity"`
	ValidityDays      int      `json:"validity_days"`
	MinimumPurchase   *float64 `json:"minimum_purchase"`
}

func (reward *RewardItem) InStock() bool {
	if !reward.IsLimited {
		return true
	}
	return reward.RemainingQuantity != nil && *reward.RemainingQuantity > 0
}
