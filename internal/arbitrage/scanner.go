// Package arbitrage implements the cross-exchange opportunity scan over
// top-of-book quotes.
package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Scanner compares quotes pairwise across exchanges and keeps every direction
// whose profit exceeds the configured threshold.
type Scanner struct {
	minProfitPct decimal.Decimal
}

// NewScanner creates a Scanner with the given minimum profit percentage.
// A threshold of 0 keeps any positive spread; something like 0.05 filters
// venue-fee noise.
func NewScanner(minProfitPct decimal.Decimal) *Scanner {
	return &Scanner{minProfitPct: minProfitPct}
}

// Scan walks every unordered exchange pair (i, j) with i < j in input order
// and checks both directions: buy i's ask / sell j's bid, then buy j's ask /
// sell i's bid. Quotes missing a side are excluded from every pair involving
// them. Scan is pure and deterministic: it performs no I/O, leaves the input
// untouched, and the output order follows pair enumeration then direction.
//
// Opportunity ID and DetectedAt are left for the caller to assign.
func (s *Scanner) Scan(asset string, quotes []domain.Quote) []domain.Opportunity {
	var opps []domain.Opportunity
	for i := 0; i < len(quotes); i++ {
		if !quotes[i].Complete() {
			continue
		}
		for j := i + 1; j < len(quotes); j++ {
			if !quotes[j].Complete() {
				continue
			}
			if opp, ok := s.check(asset, quotes[i], quotes[j]); ok {
				opps = append(opps, opp)
			}
			if opp, ok := s.check(asset, quotes[j], quotes[i]); ok {
				opps = append(opps, opp)
			}
		}
	}
	return opps
}

// check evaluates buying at buy's best ask and selling at sell's best bid.
func (s *Scanner) check(asset string, buy, sell domain.Quote) (domain.Opportunity, bool) {
	buyPrice := *buy.BestAsk
	sellPrice := *sell.BestBid
	if buyPrice.Sign() <= 0 {
		return domain.Opportunity{}, false
	}

	profitPct := sellPrice.Sub(buyPrice).Div(buyPrice).Mul(hundred)
	if profitPct.Cmp(s.minProfitPct) <= 0 {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Asset:        asset,
		BuyExchange:  buy.Exchange,
		BuyPrice:     buyPrice,
		SellExchange: sell.Exchange,
		SellPrice:    sellPrice,
		ProfitPct:    profitPct,
	}, true
}
