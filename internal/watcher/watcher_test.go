package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"flowradar/internal/exchange"
	"flowradar/internal/model"
)

// fakeAdapter emits a fixed script of events once, then blocks until ctx is
// cancelled, returning ctx.Err() (exercised via the run loop's select on
// ctx.Done(), not ErrConnectionLost, since these tests only care about state
// transitions from a single connection).
type fakeAdapter struct {
	venue  model.Venue
	events []exchange.NormalizedEvent
}

func (f *fakeAdapter) Venue() model.Venue { return f.venue }

func (f *fakeAdapter) Run(ctx context.Context, symbols []string, out chan<- exchange.NormalizedEvent) error {
	for _, evt := range f.events {
		select {
		case out <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingSink struct {
	mu     sync.Mutex
	stats  []model.SignalResult
	alerts []model.WhaleAlert
}

func (s *recordingSink) PublishStats(r model.SignalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, r)
}

func (s *recordingSink) PublishAlert(a model.WhaleAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *recordingSink) statsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}

func TestImbalanceRatio_MatchesRawDepthRatioUnclamped(t *testing.T) {
	// A heavily bid-skewed book (true ratio ~4.34) must recover the actual
	// ratio, not a value saturated by the signal engine's clamped score.
	if got := imbalanceRatio(4340, 1000); got < 4.33 || got > 4.35 {
		t.Errorf("imbalanceRatio(4340, 1000) = %v, want ~4.34", got)
	}
	if got := imbalanceRatio(100, 0); got != 2.0 {
		t.Errorf("imbalanceRatio with zero ask depth = %v, want 2.0", got)
	}
	if got := imbalanceRatio(0, 100); got != 0.5 {
		t.Errorf("imbalanceRatio with zero bid depth = %v, want 0.5", got)
	}
}

func bookEvent(inst model.Instrument) exchange.NormalizedEvent {
	bid, _ := model.NewLevel("100", "500")
	ask, _ := model.NewLevel("100.1", "100")
	return exchange.NormalizedEvent{
		Kind: exchange.EventBook,
		Book: model.BookSnapshot{
			Instrument: inst,
			Bids:       []model.PriceLevel{bid},
			Asks:       []model.PriceLevel{ask},
			ReceivedAt: time.Now(),
		},
	}
}

func TestWatcher_ProcessesBookIntoStats(t *testing.T) {
	inst := model.Instrument{Venue: model.VenueBingX, Symbol: "BTC-USDT"}
	adapter := &fakeAdapter{venue: model.VenueBingX, events: []exchange.NormalizedEvent{bookEvent(inst)}}
	sink := &recordingSink{}
	w := New(inst, adapter, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(150 * time.Millisecond)
	for sink.statsCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a stats publish")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	st := w.State()
	if st.MidPrice <= 0 {
		t.Errorf("expected mid price to be populated, got %v", st.MidPrice)
	}
}

func TestWatcher_ReconnectPreservesImbalanceHistory(t *testing.T) {
	inst := model.Instrument{Venue: model.VenueBingX, Symbol: "BTC-USDT"}
	adapter := &fakeAdapter{venue: model.VenueBingX, events: []exchange.NormalizedEvent{bookEvent(inst)}}
	sink := &recordingSink{}
	w := New(inst, adapter, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Simulate a single connection attempt running just long enough to
	// process the scripted event, then being torn down, as Stop would do
	// after a reconnect-triggering disconnect. ImbalanceHistory lives on the
	// Watcher's InstrumentState, not the adapter, so it must survive.
	innerCtx, innerCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	w.runOnce(innerCtx)
	innerCancel()

	before := w.State().ImbalanceHistory.Len()
	if before == 0 {
		t.Fatalf("expected at least one sample recorded before simulated reconnect")
	}

	innerCtx2, innerCancel2 := context.WithTimeout(ctx, 100*time.Millisecond)
	w.runOnce(innerCtx2)
	innerCancel2()

	after := w.State().ImbalanceHistory.Len()
	if after <= before {
		t.Errorf("expected imbalance history to grow across simulated reconnect, before=%d after=%d", before, after)
	}
}
