package ledger

import (
	"errors"
	"fmt"
	"math"

	"pointsledger/internal/models"
)

var ErrInvalidTierTable = errors.New("loyalty: invalid tier table")

func intPtr(v int) *int {
	return &v
}

func DefaultTiers() []models.Tier {
	return []models.Tier{
		{
			ID:         "bronze",
			Name:       "Bronze",
			MinPoints:  0,
			MaxPoints:  intPtr(999),
			Multiplier: 1.0,
			Benefits:   []string{"Earn points on every purchase"},
		},
		{
			ID:         "silver",
			Name:       "Silver",
			MinPoints:  1000,
			MaxPoints:  intPtr(4999),
			Multiplier: 1.25,
			Benefits:   []string{"25% bonus points on purchases", "Birthday reward"},
		},
		{
			ID:         "gold",
			Name:       "Gold",
			MinPoints:  5000,
			MaxPoints:  intPtr(14999),
			Multiplier: 1.5,
			Benefits:   []string{"50% bonus points on purchases", "Free shipping", "Priority support"},
		},
		{
			ID:         "platinum",
			Name:       "Platinum",
			MinPoints:  15000,
			Multiplier: 2.0,
			Benefits:   []string{"Double points on purchases", "Free shipping", "Priority support", "Exclusive rewards"},
		},
	}
}

// TierTable is an ascending, contiguous list of tiers starting at zero points.
type TierTable struct {
	tiers []models.Tier
}

func NewTierTable(tiers []models.Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTierTable)
	}
	if tiers[0].MinPoints != 0 {
		return nil, fmt.Errorf("%w: lowest tier must start at 0", ErrInvalidTierTable)
	}

	seen := make(map[string]bool, len(tiers))
	for i, tier := range tiers {
		if tier.ID == "" || seen[tier.ID] {
			return nil, fmt.Errorf("%w: tier %d has an empty or duplicate id", ErrInvalidTierTable, i)
		}
		seen[tier.ID] = true

		if tier.Multiplier < 1.0 {
			return nil, fmt.Errorf("%w: tier %s multiplier below 1.0", ErrInvalidTierTable, tier.ID)
		}

		last := i == len(tiers)-1
		if last {
			if tier.MaxPoints != nil {
				return nil, fmt.Errorf("%w: top tier %s must be open-ended", ErrInvalidTierTable, tier.ID)
			}
			continue
		}

		next := tiers[i+1]
		if tier.MaxPoints == nil || *tier.MaxPoints < tier.MinPoints || *tier.MaxPoints+1 != next.MinPoints {
			return nil, fmt.Errorf("%w: tier %s does not end where %s begins", ErrInvalidTierTable, tier.ID, next.ID)
		}
	}

	cp := make([]models.Tier, len(tiers))
	copy(cp, tiers)
	return &TierTable{tiers: cp}, nil
}

func (table *TierTable) Tiers() []models.Tier {
	cp := make([]models.Tier, len(table.tiers))
	copy(cp, table.tiers)
	return cp
}

func (table *TierTable) Lowest() models.Tier {
	return table.tiers[0]
}

func (table *TierTable) ByID(id string) (models.Tier, bool) {
	for _, tier := range table.tiers {
		if tier.ID == id {
			return tier, true
		}
	}
	return models.Tier{}, false
}

type TierCalculator struct {
	table *TierTable
}

func NewTierCalculator(table *TierTable) *TierCalculator {
	return &TierCalculator{table}
}

func (calc *TierCalculator) TierFor(totalPoints int) models.Tier {
	tier := calc.table.Lowest()
	for _, t := range calc.table.tiers {
		if t.MinPoints <= totalPoints {
			tier = t
		}
	}
	return tier
}

func (calc *TierCalculator) Progress(totalPoints int) models.TierProgress {
	current := calc.TierFor(totalPoints)

	var next *models.Tier
	for _, t := range calc.table.tiers {
		if t.MinPoints > totalPoints {
			t := t
			next = &t
			break
		}
	}

	if next == nil {
		return models.TierProgress{Current: current, Percent: 100}
	}

	span := float64(next.MinPoints - current.MinPoints)
	percent := float64(totalPoints-current.MinPoints) / span * 100
	percent = math.Max(0, math.Min(100, percent))

	return models.TierProgress{
		Current:      current,
		Next:         next,
		Percent:      percent,
		PointsToNext: next.MinPoints - totalPoints,
	}
}
