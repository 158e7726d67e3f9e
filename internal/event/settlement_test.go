package event_test

import (
	"testing"

	"BasktSync/internal/event"
)

func TestNormalize_PositivePayoutUnchanged(t *testing.T) {
	s := event.SettlementDetails{
		EscrowToTreasury:    50,
		EscrowToPool:        0,
		EscrowToUser:        950,
		UserPayout:          950,
		FeeToTreasury:       50,
		CollateralToRelease: 1000,
	}

	got := s.Normalize()
	if got != s {
		t.Errorf("got %+v, want unchanged %+v", got, s)
	}
}

func TestNormalize_BadDebtFloorsPayout(t *testing.T) {
	// Collateral 1156, loss 8000: gross payout 1156 - 8000 = -6844.
	s := event.SettlementDetails{
		EscrowToTreasury:    0,
		EscrowToPool:        1156,
		EscrowToUser:        -6844,
		Pnl:                 -8000,
		UserPayout:          -6844,
		FeeToTreasury:       10,
		CollateralToRelease: 1156,
	}

	got := s.Normalize()

	if got.UserPayout != 0 {
		t.Errorf("UserPayout = %d, want 0", got.UserPayout)
	}
	if got.BadDebtAmount != 6844 {
		t.Errorf("BadDebtAmount = %d, want 6844", got.BadDebtAmount)
	}
	if got.EscrowToUser != 0 {
		t.Errorf("EscrowToUser = %d, want 0", got.EscrowToUser)
	}
	if got.FeeToTreasury != 0 {
		t.Errorf("FeeToTreasury = %d, want capped at escrow share 0", got.FeeToTreasury)
	}
}

func TestNormalize_BadDebtMirrorsPayout(t *testing.T) {
	for _, payout := range []int64{-1, -500, -6844, -1_000_000} {
		s := event.SettlementDetails{UserPayout: payout}
		got := s.Normalize()
		if got.BadDebtAmount != -payout {
			t.Errorf("payout %d: BadDebtAmount = %d, want %d", payout, got.BadDebtAmount, -payout)
		}
	}
}

func TestCheckConservation_Balanced(t *testing.T) {
	s := event.SettlementDetails{
		EscrowToTreasury:    50,
		EscrowToPool:        200,
		EscrowToUser:        750,
		UserPayout:          750,
		CollateralToRelease: 1000,
	}
	if err := s.CheckConservation(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckConservation_SplitMismatch(t *testing.T) {
	s := event.SettlementDetails{
		EscrowToTreasury:    50,
		EscrowToPool:        200,
		EscrowToUser:        700,
		CollateralToRelease: 1000,
	}
	if err := s.CheckConservation(); err == nil {
		t.Error("expected error for unbalanced escrow split")
	}
}

func TestCheckConservation_NegativePayout(t *testing.T) {
	s := event.SettlementDetails{
		UserPayout: -10,
	}
	if err := s.CheckConservation(); err == nil {
		t.Error("expected error for negative payout")
	}
}

func TestPoolDelta(t *testing.T) {
	s := event.SettlementDetails{
		EscrowToPool:  1156,
		FeeToBlp:      5,
		PoolToUser:    0,
		BadDebtAmount: 6844,
	}
	if got, want := s.PoolDelta(), int64(1156+5-6844); got != want {
		t.Errorf("PoolDelta = %d, want %d", got, want)
	}
}

func TestNotional(t *testing.T) {
	// 3 contracts at price 2.5 in fixed point.
	got := event.Notional(3_000_000, 2_500_000)
	if want := int64(7_500_000); got != want {
		t.Errorf("Notional = %d, want %d", got, want)
	}
}
