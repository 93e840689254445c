package arbitrage

import (
	"math"

	"booster-trader/internal/droprate"
	"booster-trader/internal/services/steam"
)

// SubjectKind distinguishes the two craftable good shapes. They used to be
// squeezed through one identifier field; keeping them as an explicit union
// lets each kind carry its own key semantics.
type SubjectKind int

const (
	// KindBoosterPack is a craftable booster pack, identified by the game's
	// item id and subject to the per-item crafting cooldown.
	KindBoosterPack SubjectKind = iota
	// KindCosmetic is a craftable cosmetic drop, identified by its listing
	// hash; its craft outcome is probabilistic per the rarity pattern.
	KindCosmetic
)

// Subject is one craftable good under evaluation.
type Subject struct {
	Kind          SubjectKind
	ItemID        string // set for booster packs
	ListingHash   string // market listing the good sells as
	Name          string
	CraftCostGems int
	// RarityPattern describes the cosmetic drop category; ignored for
	// booster packs.
	RarityPattern droprate.Pattern
	// NextCreationTime is an externally observed cooldown hint in display
	// format, empty when none.
	NextCreationTime string
}

// Key is the subject's pipeline identity: item id for booster packs, the
// listing hash for cosmetics.
func (s Subject) Key() string {
	if s.Kind == KindBoosterPack {
		return s.ItemID
	}
	return s.ListingHash
}

// GemPrice is the process-wide price of crafting currency, in cents per
// sack of steam.GemsPerSack gems.
type GemPrice struct {
	CentsPerSack int
}

// CraftCostCents converts a gem cost into cents at this gem price.
func (g GemPrice) CraftCostCents(gems int) int {
	return int(math.Round(float64(gems) * float64(g.CentsPerSack) / steam.GemsPerSack))
}
