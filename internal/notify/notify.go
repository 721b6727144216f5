// Package notify fans engine events out to the operator. Consumers only
// observe; nothing here mutates engine state.
package notify

import (
	"context"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/types"
)

// New returns the Discord notifier when a webhook is configured, otherwise
// the silent fallback.
func New(webhookURL string) interfaces.Notifier {
	if webhookURL != "" {
		return newDiscord(webhookURL)
	}
	return noop{}
}

type noop struct{}

var _ interfaces.Notifier = noop{}

func (noop) Info(ctx context.Context, msg string) {}

func (noop) Error(ctx context.Context, err error) {}

func (noop) TradeClosed(ctx context.Context, trade types.ClosedTrade) {}

func (noop) PositionOpened(ctx context.Context, pos types.Position) {}
