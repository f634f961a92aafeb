package entitlements

import (
	"reflect"
	"testing"
)

func TestLimitsForTier(t *testing.T) {
	free := LimitsForTier("free")
	if free.MaxParticipants != 5 || free.MaxDates != 14 {
		t.Fatalf("unexpected free limits: %+v", free)
	}
	if !reflect.DeepEqual(free.AllowedSlotDurations, []int{15, 30, 60}) {
		t.Fatalf("unexpected free durations: %v", free.AllowedSlotDurations)
	}
	if free.Features.PasswordProtection || free.Features.CustomBranding {
		t.Fatalf("free tier must not have features: %+v", free.Features)
	}

	premium := LimitsForTier("premium")
	if premium.MaxParticipants != -1 || premium.MaxDates != 365 {
		t.Fatalf("unexpected premium limits: %+v", premium)
	}
	if !premium.Features.PasswordProtection || !premium.Features.CustomBranding {
		t.Fatalf("premium tier must have features: %+v", premium.Features)
	}

	if got := LimitsForTier("enterprise"); got.Tier != TierFree {
		t.Fatalf("unknown tier should fall back to free, got %q", got.Tier)
	}
	if got := LimitsForTier(" Premium "); got.Tier != TierPremium {
		t.Fatalf("expected premium after normalisation, got %q", got.Tier)
	}
}

func TestHasUnlimitedParticipants(t *testing.T) {
	if HasUnlimitedParticipants("free") {
		t.Fatalf("free must be capped")
	}
	if !HasUnlimitedParticipants("premium") {
		t.Fatalf("premium must be unlimited")
	}
}

func TestLimitChecks(t *testing.T) {
	free := LimitsForTier(TierFree)
	for _, d := range []int{15, 30, 60} {
		if !free.AllowsSlotDuration(d) {
			t.Fatalf("expected %d to be allowed", d)
		}
	}
	for _, d := range []int{0, 10, 45, 90} {
		if free.AllowsSlotDuration(d) {
			t.Fatalf("expected %d to be rejected", d)
		}
	}

	if !free.AllowsParticipants(4) || free.AllowsParticipants(5) {
		t.Fatalf("free tier admits exactly five respondents")
	}
	if !LimitsForTier(TierPremium).AllowsParticipants(10000) {
		t.Fatalf("premium must admit any number of respondents")
	}

	if free.AllowsDates(0) || !free.AllowsDates(14) || free.AllowsDates(15) {
		t.Fatalf("unexpected date bounds for free")
	}
}

func TestLimitsForTier_ReturnsFreshSlices(t *testing.T) {
	a := LimitsForTier(TierFree)
	a.AllowedSlotDurations[0] = 45
	if LimitsForTier(TierFree).AllowsSlotDuration(45) {
		t.Fatalf("limits table must not be mutable through returned values")
	}
}
