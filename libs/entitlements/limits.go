// Package entitlements holds the plan limits shared by every validation boundary.
package entitlements

import "strings"

const (
	TierFree    = "free"
	TierPremium = "premium"

	// UnlimitedParticipants is the MaxParticipants sentinel for uncapped tiers.
	UnlimitedParticipants = -1
)

type Features struct {
	PasswordProtection bool `json:"password_protection"`
	CustomBranding     bool `json:"custom_branding"`
}

// Limits represents the entitlements derived from a subscription tier.
type Limits struct {
	Tier                 string   `json:"tier"`
	MaxParticipants      int      `json:"max_participants"`
	MaxDates             int      `json:"max_dates"`
	AllowedSlotDurations []int    `json:"allowed_slot_durations"`
	Features             Features `json:"features"`
}

// LimitsForTier never fails: unknown tier names get the free limits.
func LimitsForTier(tier string) Limits {
	switch NormalizeTier(tier) {
	case TierPremium:
		return Limits{
			Tier:                 TierPremium,
			MaxParticipants:      UnlimitedParticipants,
			MaxDates:             365,
			AllowedSlotDurations: []int{15, 30, 60},
			Features:             Features{PasswordProtection: true, CustomBranding: true},
		}
	default:
		return Limits{
			Tier:                 TierFree,
			MaxParticipants:      5,
			MaxDates:             14,
			AllowedSlotDurations: []int{15, 30, 60},
		}
	}
}

// NormalizeTier maps free-form tier names onto the known tiers.
func NormalizeTier(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

func HasUnlimitedParticipants(tier string) bool {
	return LimitsForTier(tier).Unlimited()
}

func (l Limits) Unlimited() bool {
	return l.MaxParticipants == UnlimitedParticipants
}

func (l Limits) AllowsSlotDuration(minutes int) bool {
	for _, d := range l.AllowedSlotDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// AllowsParticipants reports whether one more respondent fits when current already responded.
func (l Limits) AllowsParticipants(current int) bool {
	return l.Unlimited() || current < l.MaxParticipants
}

func (l Limits) AllowsDates(n int) bool {
	return n >= 1 && n <= l.MaxDates
}
