package cache

import (
	"strings"
	"time"
)

// KeyPrefix marks portfolio entries in the durable store.
const KeyPrefix = "portfolio_cache_"

// Freshness windows.
const (
	FreshWindow = 5 * time.Minute
	MaxAge      = 30 * time.Minute
)

// Tier classifies how far a record can be trusted.
type Tier string

const (
	TierFresh   Tier = "fresh"
	TierStale   Tier = "stale"
	TierExpired Tier = "expired"
	TierAbsent  Tier = "absent"
)

// Classify returns the tier for a record of the given age.
func Classify(age time.Duration) Tier {
	switch {
	case age < FreshWindow:
		return TierFresh
	case age < MaxAge:
		return TierStale
	default:
		return TierExpired
	}
}

// NeedsRefresh reports whether data in tier t should be reloaded.
func (t Tier) NeedsRefresh() bool {
	return t != TierFresh
}

// Displayable reports whether data in tier t may be shown without a
// loading state.
func (t Tier) Displayable() bool {
	return t == TierFresh || t == TierStale
}

// Key returns the storage key of wallet.
func Key(wallet string) string {
	return KeyPrefix + strings.ToLower(wallet)
}
