// Package analyzer implements the Order-Flow Analyzer: discrete whale/wall/
// imbalance alerts, deduplicated per (instrument, kind, side) within a 5s
// window, bounded to the last 500 entries.
package analyzer

import (
	"fmt"
	"time"

	"flowradar/internal/model"
)

// Thresholds mirrors config.THRESHOLDS from the source: the USD cutoffs for
// "large" vs "whale" trades and the imbalance ratio that triggers an alert.
type Thresholds struct {
	LargeOrderUSD  float64
	WhaleOrderUSD  float64
	ImbalanceRatio float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeOrderUSD:  10_000,
		WhaleOrderUSD:  50_000,
		ImbalanceRatio: 1.5,
	}
}

const dedupWindow = 5 * time.Second
const alertRingCapacity = 500

// Analyzer is owned by exactly one Watcher; it is not safe for concurrent
// use from multiple goroutines.
type Analyzer struct {
	thresholds Thresholds
	alerts     []model.WhaleAlert
	lastFP     model.AlertFingerprint
	hasLast    bool
}

func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// OnBookSnapshot evaluates the wall and imbalance rules against the stats
// the Watcher has already recomputed for this snapshot, returning any
// alerts that survived dedup.
func (a *Analyzer) OnBookSnapshot(inst model.Instrument, largestBid, largestAsk model.PriceLevel, imbalanceRatio float64) []model.WhaleAlert {
	var emitted []model.WhaleAlert

	if v := largestBid.ValueQuoteFloat(); v >= a.thresholds.WhaleOrderUSD {
		if alert, ok := a.emit(model.WhaleAlert{
			Instrument:  inst,
			Kind:        model.AlertWallDetected,
			Side:        model.SideBuy,
			ValueQuote:  v,
			Price:       largestBid.PriceFloat(),
			At:          time.Now(),
			DetailsText: fmt.Sprintf("buy wall: $%.0f @ %v", v, largestBid.PriceFloat()),
		}); ok {
			emitted = append(emitted, alert)
		}
	}
	if v := largestAsk.ValueQuoteFloat(); v >= a.thresholds.WhaleOrderUSD {
		if alert, ok := a.emit(model.WhaleAlert{
			Instrument:  inst,
			Kind:        model.AlertWallDetected,
			Side:        model.SideSell,
			ValueQuote:  v,
			Price:       largestAsk.PriceFloat(),
			At:          time.Now(),
			DetailsText: fmt.Sprintf("sell wall: $%.0f @ %v", v, largestAsk.PriceFloat()),
		}); ok {
			emitted = append(emitted, alert)
		}
	}

	switch {
	case imbalanceRatio >= a.thresholds.ImbalanceRatio:
		if alert, ok := a.emit(model.WhaleAlert{
			Instrument:  inst,
			Kind:        model.AlertImbalance,
			Side:        model.SideBuy,
			ValueQuote:  imbalanceRatio,
			At:          time.Now(),
			DetailsText: fmt.Sprintf("buy pressure: %.1fx more bids than asks", imbalanceRatio),
		}); ok {
			emitted = append(emitted, alert)
		}
	case imbalanceRatio <= 1/a.thresholds.ImbalanceRatio:
		if alert, ok := a.emit(model.WhaleAlert{
			Instrument:  inst,
			Kind:        model.AlertImbalance,
			Side:        model.SideSell,
			ValueQuote:  imbalanceRatio,
			At:          time.Now(),
			DetailsText: fmt.Sprintf("sell pressure: %.1fx more asks than bids", 1/imbalanceRatio),
		}); ok {
			emitted = append(emitted, alert)
		}
	}

	return emitted
}

// OnTrade evaluates the trade-size rules for one trade, returning an alert
// if it was emitted (a zero WhaleAlert and false if suppressed by threshold
// or dedup).
func (a *Analyzer) OnTrade(t model.Trade) (model.WhaleAlert, bool) {
	value := t.ValueQuoteFloat()

	var kind model.AlertKind
	switch {
	case value >= a.thresholds.WhaleOrderUSD:
		kind = model.AlertWhaleTrade
	case value >= a.thresholds.LargeOrderUSD:
		kind = model.AlertLargeTrade
	default:
		return model.WhaleAlert{}, false
	}

	return a.emit(model.WhaleAlert{
		Instrument:  t.Instrument,
		Kind:        kind,
		Side:        t.Side,
		ValueQuote:  value,
		Price:       t.Price.InexactFloat64(),
		At:          t.OccurredAt,
		DetailsText: fmt.Sprintf("%s %s: $%.0f", kind, t.Side, value),
	})
}

func (a *Analyzer) emit(alert model.WhaleAlert) (model.WhaleAlert, bool) {
	fp := model.AlertFingerprint{Instrument: alert.Instrument, Kind: alert.Kind, Side: alert.Side, At: alert.At}
	if a.hasLast && a.lastFP.Matches(fp) && alert.At.Sub(a.lastFP.At) < dedupWindow {
		return model.WhaleAlert{}, false
	}
	a.lastFP = fp
	a.hasLast = true

	a.alerts = append(a.alerts, alert)
	if over := len(a.alerts) - alertRingCapacity; over > 0 {
		a.alerts = a.alerts[over:]
	}
	return alert, true
}

// RecentAlerts returns up to limit most recent alerts, newest first.
func (a *Analyzer) RecentAlerts(limit int) []model.WhaleAlert {
	n := len(a.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.WhaleAlert, n)
	for i := 0; i < n; i++ {
		out[i] = a.alerts[len(a.alerts)-1-i]
	}
	return out
}
