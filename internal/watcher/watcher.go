// Package watcher implements the per-instrument pipeline: one adapter
// connection, one InstrumentState, one Analyzer, and the Signal Engine. The
// adapter's reader goroutine hands events to the Watcher over a buffered
// channel (eventBuffer entries; adapters drop events when it is full), and
// the Watcher handles them one at a time in receive order: a book snapshot
// is turned into updated stats, a signal, and any alerts before the next
// event is taken from the channel.
package watcher

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"flowradar/internal/analyzer"
	"flowradar/internal/exchange"
	"flowradar/internal/model"
	"flowradar/internal/signal"
)

const (
	backoffMin    = time.Second
	backoffMax    = 30 * time.Second
	backoffFactor = 2
	backoffJitter = 0.2 // each wait is scaled by a random factor in [0.8, 1.2)
	eventBuffer   = 256
)

// Sink receives the outputs a Watcher produces so they can be fanned out to
// clients. Implemented by internal/broadcast.Hub.
type Sink interface {
	PublishStats(model.SignalResult)
	PublishAlert(model.WhaleAlert)
}

// Watcher owns exactly one instrument's ingest connection and derived state.
// It must be started with Run and stopped with Stop; it is not safe to call
// Run twice concurrently.
type Watcher struct {
	inst    model.Instrument
	adapter exchange.Adapter
	sink    Sink

	mu    sync.RWMutex
	state *model.InstrumentState

	analyzer *analyzer.Analyzer

	cancel context.CancelFunc
	done   chan struct{}
}

func New(inst model.Instrument, adapter exchange.Adapter, sink Sink) *Watcher {
	return &Watcher{
		inst:     inst,
		adapter:  adapter,
		sink:     sink,
		state:    model.NewInstrumentState(inst),
		analyzer: analyzer.New(analyzer.DefaultThresholds()),
		done:     make(chan struct{}),
	}
}

// State returns a snapshot-safe view for read-only external inspection
// (e.g. serving /watching). Callers must not mutate fields reached through
// pointers (ImbalanceHistory).
func (w *Watcher) State() model.InstrumentState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.state
}

// Run blocks until ctx is cancelled, reconnecting the adapter with
// exponential backoff (1s base, 30s cap, ±20% jitter) whenever the
// connection is lost.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer close(w.done)

	b := &backoff.Backoff{
		Min:    backoffMin,
		Max:    backoffMax,
		Factor: backoffFactor,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := b.Duration()
		wait = time.Duration(float64(wait) * (1 - backoffJitter + 2*backoffJitter*rand.Float64()))
		log.Printf("[watcher:%s] connection lost, reconnecting in %s: %v", w.inst.Key(), wait, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Stop cancels the watcher's run loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *Watcher) runOnce(ctx context.Context) error {
	events := make(chan exchange.NormalizedEvent, eventBuffer)

	runErr := make(chan error, 1)
	go func() {
		runErr <- w.adapter.Run(ctx, []string{w.inst.Symbol}, events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case evt := <-events:
			w.handle(evt)
		}
	}
}

func (w *Watcher) handle(evt exchange.NormalizedEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch evt.Kind {
	case exchange.EventBook:
		w.handleBook(evt.Book)
	case exchange.EventTrade:
		w.handleTrade(evt.Trade)
	}
}

func (w *Watcher) handleBook(book model.BookSnapshot) {
	cumDelta := w.state.CumulativeDelta
	hist := signal.History{
		ImbalanceHistory: w.state.ImbalanceHistory,
		CumulativeDelta:  &cumDelta,
	}

	result := signal.Analyze(w.inst, book.Bids, book.Asks, w.state.RecentTrades(), hist)

	w.state.CumulativeDelta = cumDelta
	w.state.MidPrice = result.MidPrice
	w.state.SpreadBps = result.SpreadBps
	w.state.LastUpdateTS = result.ComputedAt
	w.state.LastSignal = &result

	if len(book.Bids) > 0 {
		w.state.LargestBidLevel = largest(book.Bids)
		w.state.BidDepthQuote = sumQuote(book.Bids)
	}
	if len(book.Asks) > 0 {
		w.state.LargestAskLevel = largest(book.Asks)
		w.state.AskDepthQuote = sumQuote(book.Asks)
	}
	w.state.ImbalanceRatio = imbalanceRatio(w.state.BidDepthQuote, w.state.AskDepthQuote)

	if w.sink != nil {
		w.sink.PublishStats(result)
	}

	alerts := w.analyzer.OnBookSnapshot(w.inst, w.state.LargestBidLevel, w.state.LargestAskLevel, w.state.ImbalanceRatio)
	w.publishAlerts(alerts)
}

func (w *Watcher) handleTrade(t model.Trade) {
	w.state.AppendTrade(model.TradeRecord{
		ValueQuote: t.ValueQuoteFloat(),
		Side:       t.Side,
		OccurredAt: t.OccurredAt,
	})

	if alert, ok := w.analyzer.OnTrade(t); ok {
		w.publishAlerts([]model.WhaleAlert{alert})
	}
}

func (w *Watcher) publishAlerts(alerts []model.WhaleAlert) {
	if w.sink == nil {
		return
	}
	for _, a := range alerts {
		w.sink.PublishAlert(a)
	}
}

// imbalanceRatio is bid depth over ask depth, the raw ratio the analyzer's
// threshold rule compares against IR (not the signal engine's clamped
// pressure score, which is a different numeric shape for a related but
// distinct quantity).
func imbalanceRatio(bidDepth, askDepth float64) float64 {
	if askDepth == 0 {
		return 2.0
	}
	if bidDepth == 0 {
		return 0.5
	}
	return bidDepth / askDepth
}

func largest(levels []model.PriceLevel) model.PriceLevel {
	best := levels[0]
	for _, l := range levels[1:] {
		if l.ValueQuoteFloat() > best.ValueQuoteFloat() {
			best = l
		}
	}
	return best
}

func sumQuote(levels []model.PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.ValueQuoteFloat()
	}
	return total
}
