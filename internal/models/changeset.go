package models

// Changeset groups the records one ledger operation writes. Stores apply a
// changeset atomically.
type Changeset struct {
	Accounts      []*Account
	Transactions  []*Transaction
	Rewards       []*RewardItem
	Redemptions   []*Redemption
	Referrals     []*Referral
	ReferralCodes []*ReferralCode
}

func (c *Changeset) Empty() bool {
	return len(c.Accounts) == 0 &&
		len(c.Transactions) == 0 &&
		len(c.Rewards) == 0 &&
		len(c.Redemptions) == 0 &&
		len(c.Referrals) == 0 &&
		len(c.ReferralCodes) == 0
}
