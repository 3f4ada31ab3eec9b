package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a detected cross-exchange arbitrage: buy at BuyExchange's
// best ask, sell at SellExchange's best bid. ProfitPct ignores fees and
// slippage.
type Opportunity struct {
	ID           string
	Asset        string
	BuyExchange  string
	BuyPrice     decimal.Decimal
	SellExchange string
	SellPrice    decimal.Decimal
	ProfitPct    decimal.Decimal
	DetectedAt   time.Time
}
