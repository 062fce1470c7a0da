// Package companions owns the persona catalog: the built-in default set,
// subscription-tier access rules and a cached registry over the database.
package companions

import "github.com/tbourn/go-companion-bot/internal/domain"

// DefaultID is the id of the friendly generalist persona that answers when
// nothing else selects a companion.
const DefaultID = "emanuelle"

// Defaults returns the built-in catalog in seed order. The slice is a fresh
// copy on every call.
func Defaults() []domain.Companion {
	return []domain.Companion{
		{
			ID:               "emanuelle",
			Name:             "Emanuelle",
			Avatar:           "🤖",
			Description:      "Your friendly AI companion for everyday conversations",
			Personality:      "Friendly, helpful, and always ready to chat",
			EnergyCost:       5,
			SubscriptionTier: domain.TierFree,
			IsActive:         true,
		},
		{
			ID:               "sophia",
			Name:             "Sophia",
			Avatar:           "🧠",
			Description:      "Intellectual companion for deep discussions and learning",
			Personality:      "Wise, analytical, and loves intellectual challenges. Sophia is your go-to companion for deep philosophical discussions, scientific explorations, and intellectual growth.",
			EnergyCost:       10,
			SubscriptionTier: domain.TierFree,
			IsActive:         true,
		},
		{
			ID:               "luna",
			Name:             "Luna",
			Avatar:           "🌙",
			Description:      "Creative companion for artistic and imaginative conversations",
			Personality:      "Creative, imaginative, and inspiring. Luna helps you explore your artistic side, dream big, and find inspiration in the world around you.",
			EnergyCost:       8,
			SubscriptionTier: domain.TierFree,
			IsActive:         true,
		},
		{
			ID:               "atlas",
			Name:             "Atlas",
			Avatar:           "🗺️",
			Description:      "Adventure companion for travel stories and exploration",
			Personality:      "Adventurous, curious, and loves to explore",
			EnergyCost:       12,
			SubscriptionTier: domain.TierBasic,
			IsActive:         true,
		},
		{
			ID:               "nova",
			Name:             "Nova",
			Avatar:           "⭐",
			Description:      "Premium companion with advanced AI capabilities",
			Personality:      "Sophisticated, insightful, and highly intelligent",
			EnergyCost:       15,
			SubscriptionTier: domain.TierPremium,
			IsActive:         true,
		},
		{
			ID:               "zen",
			Name:             "Zen",
			Avatar:           "🧘",
			Description:      "Ultimate companion with custom personality training",
			Personality:      "Customizable, adaptive, and deeply personal",
			EnergyCost:       20,
			SubscriptionTier: domain.TierUltimate,
			IsActive:         true,
		},
	}
}

// Default returns the built-in default persona.
func Default() domain.Companion {
	return Defaults()[0]
}

// ValidTier reports whether tier is one of the known subscription tiers.
func ValidTier(tier string) bool {
	switch tier {
	case domain.TierFree, domain.TierBasic, domain.TierPremium, domain.TierUltimate:
		return true
	}
	return false
}

// Accessible reports whether a subscriber on userTier may talk to c.
// ULTIMATE sees everything, PREMIUM everything but ULTIMATE, BASIC sees FREE
// and BASIC; any other value is treated as FREE.
func Accessible(userTier string, c domain.Companion) bool {
	switch userTier {
	case domain.TierUltimate:
		return true
	case domain.TierPremium:
		return c.SubscriptionTier != domain.TierUltimate
	case domain.TierBasic:
		return c.SubscriptionTier == domain.TierFree || c.SubscriptionTier == domain.TierBasic
	default:
		return c.SubscriptionTier == domain.TierFree
	}
}

// FilterByTier returns the companions accessible to userTier, keeping order.
func FilterByTier(cs []domain.Companion, userTier string) []domain.Companion {
	out := make([]domain.Companion, 0, len(cs))
	for _, c := range cs {
		if Accessible(userTier, c) {
			out = append(out, c)
		}
	}
	return out
}
