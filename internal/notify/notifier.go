// Package notify announces detected arbitrage opportunities to external
// channels (Telegram, Discord). Delivery failures never interrupt scanning.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches opportunity alerts to all registered senders once the
// profit clears the notify threshold (which can sit above the scan
// threshold, so the console sees more than the phone does).
type Notifier struct {
	senders      []Sender
	minProfitPct decimal.Decimal
	logger       *slog.Logger
}

// NewNotifier creates a Notifier. With no senders every call is a no-op.
func NewNotifier(senders []Sender, minProfitPct decimal.Decimal, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:      senders,
		minProfitPct: minProfitPct,
		logger:       logger.With(slog.String("component", "notifier")),
	}
}

// Announce delivers one opportunity to every sender. Individual sender
// failures are logged and do not block the remaining senders.
func (n *Notifier) Announce(ctx context.Context, opp domain.Opportunity) {
	if len(n.senders) == 0 {
		return
	}
	if opp.ProfitPct.Cmp(n.minProfitPct) < 0 {
		return
	}

	title := fmt.Sprintf("Arbitrage: %s +%s%%", opp.Asset, opp.ProfitPct.StringFixed(2))
	message := fmt.Sprintf("Buy %s on %s at %s, sell on %s at %s.",
		opp.Asset,
		strings.ToUpper(opp.BuyExchange), opp.BuyPrice.String(),
		strings.ToUpper(opp.SellExchange), opp.SellPrice.String(),
	)

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("asset", opp.Asset),
		)
	}
}
