// Package selection decides which ledger units satisfy a requested quantity.
package selection

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
)

// Select walks the AVAILABLE candidates in strategy order and draws greedily
// until requested is met. It never fails on shortfall; the result reports
// what could be drawn.
func Select(candidates []domain.Unit, requested decimal.Decimal, strategy domain.Strategy) domain.AllocationResult {
	result := domain.AllocationResult{
		Draws:     make([]domain.UnitDraw, 0),
		Requested: requested,
		Drawn:     decimal.Zero,
		Shortfall: decimal.Max(requested, decimal.Zero),
	}
	if !requested.IsPositive() {
		return result
	}

	sorted := Order(Available(candidates), strategy)

	remaining := requested
	for i := range sorted {
		if !remaining.IsPositive() {
			break
		}
		u := &sorted[i]
		take := decimal.Min(remaining, u.QuantityAvailable)
		result.Draws = append(result.Draws, domain.UnitDraw{
			UnitID:     u.ID,
			BatchID:    u.BatchID,
			ItemID:     u.ItemID,
			Quantity:   take,
			UnitCost:   u.UnitCost,
			ExpiryDate: u.ExpiryDate,
		})
		result.Drawn = result.Drawn.Add(take)
		remaining = remaining.Sub(take)
	}

	result.Shortfall = remaining
	return result
}

// Available keeps AVAILABLE units with something left to draw.
func Available(units []domain.Unit) []domain.Unit {
	out := make([]domain.Unit, 0, len(units))
	for _, u := range units {
		if u.Status == domain.StatusAvailable && u.QuantityAvailable.IsPositive() {
			out = append(out, u)
		}
	}
	return out
}

// Total sums the available quantity of units.
func Total(units []domain.Unit) decimal.Decimal {
	total := decimal.Zero
	for _, u := range Available(units) {
		total = total.Add(u.QuantityAvailable)
	}
	return total
}

// Order returns a copy of units sorted for strategy.
//
// FIFO: expiry ascending with no-expiry last, then received ascending, then
// insertion sequence. LIFO is the exact reverse of that key.
func Order(units []domain.Unit, strategy domain.Strategy) []domain.Unit {
	sorted := make([]domain.Unit, len(units))
	copy(sorted, units)

	sort.SliceStable(sorted, func(i, j int) bool {
		if strategy == domain.LIFO {
			return fifoLess(&sorted[j], &sorted[i])
		}
		return fifoLess(&sorted[i], &sorted[j])
	})
	return sorted
}

func fifoLess(a, b *domain.Unit) bool {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if !a.ExpiryDate.Equal(*b.ExpiryDate) {
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	case a.ExpiryDate != nil:
		return true
	case b.ExpiryDate != nil:
		return false
	}

	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.Seq < b.Seq
}
