package broadcast

import (
	"testing"
	"time"

	"flowradar/internal/model"
)

type recordingSink struct {
	received []Envelope
	accept   bool
}

func (r *recordingSink) Send(env Envelope) bool {
	if !r.accept {
		return false
	}
	r.received = append(r.received, env)
	return true
}

func TestHub_SlowSinkRemovedWithoutPerturbingOthers(t *testing.T) {
	h := NewHub(1_000_000) // no secondary alert sinks exercised here
	slow := &recordingSink{accept: false}
	fast := &recordingSink{accept: true}
	h.Register(slow)
	h.Register(fast)

	h.PublishStats(model.SignalResult{Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: "BTC-USDT"}})

	if len(fast.received) != 1 {
		t.Fatalf("expected the healthy sink to receive the event, got %d", len(fast.received))
	}

	h.mu.RLock()
	_, stillRegistered := h.clients[slow]
	h.mu.RUnlock()
	if stillRegistered {
		t.Errorf("expected the rejecting sink to be dropped from the client set")
	}

	// A second publish must still reach the surviving sink.
	h.PublishStats(model.SignalResult{Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: "ETH-USDT"}})
	if len(fast.received) != 2 {
		t.Errorf("expected the surviving sink to keep receiving events, got %d", len(fast.received))
	}
}

func TestHub_HighSeverityAlertsReachSecondarySinks(t *testing.T) {
	h := NewHub(50_000)
	alertSink := &recordingSink{accept: true}
	h.RegisterAlertSink(alertSink)

	h.PublishAlert(model.WhaleAlert{
		Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: "BTC-USDT"},
		Kind:       model.AlertWhaleTrade,
		ValueQuote: 40_000,
	})
	if len(alertSink.received) != 0 {
		t.Errorf("a $40k alert is below the $50k secondary-sink threshold, should not forward")
	}

	h.PublishAlert(model.WhaleAlert{
		Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: "BTC-USDT"},
		Kind:       model.AlertWallDetected,
		ValueQuote: 120_000,
	})
	if len(alertSink.received) != 1 {
		t.Errorf("expected the $120k alert to reach the secondary sink")
	}
}

func TestHub_ConcurrentRegisterUnregisterIsSafe(t *testing.T) {
	h := NewHub(1_000_000)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s := &recordingSink{accept: true}
			h.Register(s)
			h.PublishStats(model.SignalResult{})
			h.Unregister(s)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out, possible deadlock in register/unregister under load")
	}
}
