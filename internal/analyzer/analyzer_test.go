package analyzer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flowradar/internal/model"
)

func inst() model.Instrument {
	return model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}
}

func trade(t *testing.T, price, qty string, side model.Side, at time.Time) model.Trade {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatal(err)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		t.Fatal(err)
	}
	return model.Trade{Instrument: inst(), Price: p, Quantity: q, Side: side, OccurredAt: at}
}

func TestOnTrade_WhaleDedupWithinWindow(t *testing.T) {
	a := New(DefaultThresholds())
	base := time.Now()

	first := trade(t, "100", "600", model.SideBuy, base)
	alert, ok := a.OnTrade(first)
	if !ok {
		t.Fatalf("expected first $60k trade to emit an alert")
	}
	if alert.Kind != model.AlertWhaleTrade {
		t.Errorf("kind = %v, want whale_trade", alert.Kind)
	}

	second := trade(t, "100", "600", model.SideBuy, base.Add(2*time.Second))
	if _, ok := a.OnTrade(second); ok {
		t.Errorf("expected second $60k trade 2s later to be suppressed by dedup")
	}

	if len(a.RecentAlerts(10)) != 1 {
		t.Errorf("expected exactly one alert retained, got %d", len(a.RecentAlerts(10)))
	}
}

func TestOnTrade_AlertSurvivesAfterWindow(t *testing.T) {
	a := New(DefaultThresholds())
	base := time.Now()

	a.OnTrade(trade(t, "100", "600", model.SideBuy, base))
	_, ok := a.OnTrade(trade(t, "100", "600", model.SideBuy, base.Add(6*time.Second)))
	if !ok {
		t.Errorf("expected a repeat whale trade after the dedup window to emit again")
	}
}

func TestOnTrade_LargeVsWhaleVsIgnored(t *testing.T) {
	a := New(DefaultThresholds())
	now := time.Now()

	if _, ok := a.OnTrade(trade(t, "100", "50", model.SideBuy, now)); ok {
		t.Errorf("a $5k trade should not alert")
	}
	if alert, ok := a.OnTrade(trade(t, "100", "150", model.SideSell, now.Add(time.Second))); !ok || alert.Kind != model.AlertLargeTrade {
		t.Errorf("a $15k trade should emit large_trade, got ok=%v alert=%+v", ok, alert)
	}
	if alert, ok := a.OnTrade(trade(t, "100", "600", model.SideSell, now.Add(2*time.Second))); !ok || alert.Kind != model.AlertWhaleTrade {
		t.Errorf("a $60k trade should emit whale_trade, got ok=%v alert=%+v", ok, alert)
	}
}

func TestOnBookSnapshot_IndependentWalls(t *testing.T) {
	a := New(DefaultThresholds())
	bigBid, _ := model.NewLevel("100", "600")
	bigAsk, _ := model.NewLevel("101", "600")

	alerts := a.OnBookSnapshot(inst(), bigBid, bigAsk, 1.0)
	if len(alerts) != 2 {
		t.Fatalf("expected both a buy wall and a sell wall, got %d alerts: %+v", len(alerts), alerts)
	}
	sides := map[model.Side]bool{}
	for _, al := range alerts {
		if al.Kind != model.AlertWallDetected {
			t.Errorf("kind = %v, want wall_detected", al.Kind)
		}
		sides[al.Side] = true
	}
	if !sides[model.SideBuy] || !sides[model.SideSell] {
		t.Errorf("expected one buy-side and one sell-side wall alert, got %+v", alerts)
	}
}

func TestOnBookSnapshot_ImbalanceThresholds(t *testing.T) {
	a := New(DefaultThresholds())
	small, _ := model.NewLevel("100", "1")

	alerts := a.OnBookSnapshot(inst(), small, small, 2.0)
	if len(alerts) != 1 || alerts[0].Kind != model.AlertImbalance || alerts[0].Side != model.SideBuy {
		t.Fatalf("expected a single buy imbalance alert, got %+v", alerts)
	}

	a2 := New(DefaultThresholds())
	alerts2 := a2.OnBookSnapshot(inst(), small, small, 0.5)
	if len(alerts2) != 1 || alerts2[0].Kind != model.AlertImbalance || alerts2[0].Side != model.SideSell {
		t.Fatalf("expected a single sell imbalance alert, got %+v", alerts2)
	}
}

func TestRecentAlerts_RingCapsAt500(t *testing.T) {
	a := New(DefaultThresholds())
	base := time.Now()
	for i := 0; i < 520; i++ {
		a.OnTrade(trade(t, "100", "600", model.SideBuy, base.Add(time.Duration(i)*10*time.Second)))
	}
	if got := len(a.RecentAlerts(1000)); got != alertRingCapacity {
		t.Errorf("ring size = %d, want capped at %d", got, alertRingCapacity)
	}
}
