package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"scalp-trading-bot/internal/api"
	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/types"
)

// discord posts engine events to a webhook. Delivery is best-effort: a
// failed post is logged and dropped, never retried into the hot path.
type discord struct {
	url    string
	client *api.Client
}

var _ interfaces.Notifier = (*discord)(nil)

func newDiscord(webhookURL string) *discord {
	return &discord{
		url: webhookURL,
		client: api.NewClient(
			api.WithTimeout(10 * time.Second),
		),
	}
}

func (d *discord) post(ctx context.Context, content string) {
	req := api.NewRequest(http.MethodPost, d.url).
		WithContext(ctx).
		WithBody(map[string]string{"content": content})
	if _, err := d.client.Do(req); err != nil {
		logger.Warn(ctx, "Notification dropped", "error", err)
	}
}

func (d *discord) Info(ctx context.Context, msg string) {
	d.post(ctx, msg)
}

func (d *discord) Error(ctx context.Context, err error) {
	d.post(ctx, fmt.Sprintf(":rotating_light: %v", err))
}

func (d *discord) PositionOpened(ctx context.Context, pos types.Position) {
	d.post(ctx, fmt.Sprintf(
		":arrow_forward: **%s %s** qty %.6g @ %.6g, lev %dx, SL %.6g, TP %.6g",
		pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.Leverage, pos.StopLoss, pos.TakeProfit,
	))
}

func (d *discord) TradeClosed(ctx context.Context, trade types.ClosedTrade) {
	emoji := ":chart_with_upwards_trend:"
	if trade.NetPnlUsd < 0 {
		emoji = ":chart_with_downwards_trend:"
	}
	d.post(ctx, fmt.Sprintf(
		"%s **%s %s** closed (%s): entry %.6g exit %.6g, net %+.4f USD (fees %.4f)",
		emoji, trade.Side, trade.Symbol, trade.ExitReason,
		trade.EntryPrice, trade.ExitPrice, trade.NetPnlUsd, trade.CommissionUsd,
	))
}
