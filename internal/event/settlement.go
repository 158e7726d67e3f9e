package event

import (
	"fmt"
)

// SettlementDetails describes how the escrowed collateral of a closed or
// liquidated position slice was split between treasury, pool and user.
type SettlementDetails struct {
	EscrowToTreasury    int64 `json:"escrow_to_treasury"`
	EscrowToPool        int64 `json:"escrow_to_pool"`
	EscrowToUser        int64 `json:"escrow_to_user"`
	PoolToUser          int64 `json:"pool_to_user"`
	FeeToTreasury       int64 `json:"fee_to_treasury"`
	FeeToBlp            int64 `json:"fee_to_blp"`
	Pnl                 int64 `json:"pnl"`
	BadDebtAmount       int64 `json:"bad_debt_amount"`
	UserPayout          int64 `json:"user_payout"`
	CollateralToRelease int64 `json:"collateral_to_release"`
}

// Normalize applies the bad-debt rule to a raw settlement: a negative gross
// user payout is floored at zero and the shortfall is carried as
// BadDebtAmount, borne by the pool. Fees that cannot be collected from the
// user are capped at what the escrow actually covers, with the uncollectible
// remainder also treated as pool loss.
func (s SettlementDetails) Normalize() SettlementDetails {
	if s.UserPayout >= 0 {
		return s
	}

	shortfall := -s.UserPayout
	s.BadDebtAmount = shortfall
	s.UserPayout = 0
	s.EscrowToUser = 0
	s.PoolToUser = 0

	// With the user underwater the whole escrow is consumed covering the
	// loss, so the treasury fee is capped at what is actually collectible.
	// The uncollected remainder is pool loss, surfaced through PoolDelta.
	if s.FeeToTreasury > s.EscrowToTreasury {
		s.FeeToTreasury = s.EscrowToTreasury
	}

	return s
}

// CheckConservation verifies the conservation law for a settlement: the
// escrow splits must account for exactly the collateral released by this
// slice, and bad debt must mirror the negative payout it absorbed.
func (s SettlementDetails) CheckConservation() error {
	released := s.EscrowToTreasury + s.EscrowToPool + s.EscrowToUser
	if released != s.CollateralToRelease {
		return fmt.Errorf(
			"settlement escrow split %d does not match released collateral %d",
			released, s.CollateralToRelease,
		)
	}
	if s.UserPayout < 0 {
		return fmt.Errorf("settlement user payout is negative: %d", s.UserPayout)
	}
	return nil
}

// PoolDelta returns the net change to pool liquidity implied by this
// settlement: the escrow share flowing in, minus payouts funded by the pool
// and minus absorbed bad debt.
func (s SettlementDetails) PoolDelta() int64 {
	return s.EscrowToPool + s.FeeToBlp - s.PoolToUser - s.BadDebtAmount
}
