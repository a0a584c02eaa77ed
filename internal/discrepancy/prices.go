package discrepancy

import (
	"log/slog"

	"github.com/mvc24/bibliopa/internal/models"
)

// ApplyPrices copies the price of each resolved discrepancy onto the matched
// record when that record has no price of its own. Only the resolved tier is
// applied; resolved_ish matches need a human first. Returns the number of
// records updated.
func ApplyPrices(corpus []models.ConsolidatedRecord, resolved []models.ResolvedDiscrepancy) int {
	byID := make(map[string]int, len(corpus))
	for i, r := range corpus {
		byID[r.CompositeID] = i
	}

	updated := 0
	for _, res := range resolved {
		if res.Tier != models.TierResolved || res.Discrepancy.Price == nil {
			continue
		}
		i, ok := byID[res.MatchedCompositeID]
		if !ok || corpus[i].Price != nil {
			continue
		}
		price := *res.Discrepancy.Price
		corpus[i].Price = &price
		corpus[i].PriceImported = true
		updated++
	}

	slog.Debug("Imported prices from resolved discrepancies", "updated", updated)
	return updated
}
