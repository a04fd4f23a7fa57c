// Package notification delivers alerts about signals, regime transitions
// and paper trades to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-signalsv1/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Kind    string         `json:"kind"`
	Symbol  string         `json:"symbol,omitempty"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Time    time.Time      `json:"ts"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	ev := n.log.Info()
	if alert.Level == AlertWarning || alert.Level == AlertCritical {
		ev = n.log.Warn()
	}
	ev.Str("severity", string(alert.Level)).
		Str("kind", alert.Kind).
		Str("symbol", alert.Symbol).
		Fields(alert.Fields).
		Msg(alert.Title + ": " + alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert describes an actionable signal.
func SignalAlert(sig model.SignalResult) Alert {
	fields := map[string]any{
		"id":         sig.ID,
		"confidence": sig.Confidence,
		"regime":     string(sig.Regime),
	}
	if sig.HasTargets() {
		fields["entry"] = *sig.EntryPrice
		fields["stopLoss"] = *sig.StopLoss
		fields["takeProfit"] = *sig.TakeProfit
	}
	return Alert{
		Level:   AlertInfo,
		Kind:    "signal",
		Symbol:  sig.Symbol,
		Title:   fmt.Sprintf("%s %s (%.0f%%)", sig.Signal, sig.Symbol, sig.Confidence),
		Message: sig.Reason,
		Time:    sig.Timestamp,
		Fields:  fields,
	}
}

// RegimeAlert describes a regime transition.
func RegimeAlert(symbol string, from model.MarketRegime, to model.RegimeState) Alert {
	level := AlertInfo
	if to.Current.IsStrong() {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Kind:    "regime",
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s regime %s", symbol, to.Current),
		Message: fmt.Sprintf("%s -> %s (confidence %.0f%%)", from, to.Current, to.Confidence),
		Time:    to.EnteredAt,
		Fields: map[string]any{
			"from":       string(from),
			"to":         string(to.Current),
			"confidence": to.Confidence,
		},
	}
}

// TradeAlert describes a paper trade that was opened or closed.
func TradeAlert(t model.Trade) Alert {
	if t.IsOpen() {
		return Alert{
			Level:   AlertInfo,
			Kind:    "trade_open",
			Symbol:  t.Symbol,
			Title:   fmt.Sprintf("opened %s %s", t.Direction, t.Symbol),
			Message: fmt.Sprintf("entry %.4f stop %.4f target %.4f", t.EntryPrice, t.StopLoss, t.TakeProfit),
			Time:    t.EntryTime,
			Fields:  map[string]any{"trade": t.ID},
		}
	}
	level := AlertInfo
	if t.PnLPercent < 0 {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Kind:    "trade_close",
		Symbol:  t.Symbol,
		Title:   fmt.Sprintf("closed %s %s %+.2f%%", t.Direction, t.Symbol, t.PnLPercent),
		Message: fmt.Sprintf("%s at %.4f", t.ExitReason, t.ExitPrice),
		Time:    t.ExitTime,
		Fields:  map[string]any{"trade": t.ID, "pnlAbsolute": t.PnLAbsolute},
	}
}
