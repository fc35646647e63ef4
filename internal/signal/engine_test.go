package signal

import (
	"math"
	"testing"

	"flowradar/internal/model"
)

func levels(t *testing.T, pairs [][2]string) []model.PriceLevel {
	t.Helper()
	out := make([]model.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		lvl, err := model.NewLevel(p[0], p[1])
		if err != nil {
			t.Fatalf("bad level %v: %v", p, err)
		}
		out = append(out, lvl)
	}
	return out
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAnalyze_BullishScalp(t *testing.T) {
	bids := levels(t, [][2]string{{"100.0", "500"}, {"99.9", "300"}, {"99.8", "1000"}, {"99.7", "200"}})
	asks := levels(t, [][2]string{{"100.1", "200"}, {"100.2", "150"}, {"100.3", "100"}})

	hist := History{ImbalanceHistory: model.NewFloatRing(model.ImbalanceHistoryCapacity)}
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)

	if !approxEqual(result.Components.Imbalance, 100, 1e-9) {
		t.Errorf("imbalance score = %v, want 100", result.Components.Imbalance)
	}
	if result.Class != model.StrongBuy {
		t.Errorf("class = %v, want STRONG_BUY", result.Class)
	}
	if result.Components.Wall <= 0 {
		t.Errorf("wall score = %v, want > 0 (bid wall should dominate)", result.Components.Wall)
	}
	if !approxEqual(result.MidPrice, 100.05, 1e-9) {
		t.Errorf("mid price = %v, want ~100.05", result.MidPrice)
	}

	var scalp *model.TradeSuggestion
	for i := range result.Suggestions {
		if result.Suggestions[i].Kind == model.SuggestionScalp {
			scalp = &result.Suggestions[i]
		}
	}
	if scalp == nil || scalp.Side != model.TradeLong {
		t.Errorf("expected LONG scalp suggestion, got %+v", scalp)
	}
}

func TestAnalyze_BearishScalp(t *testing.T) {
	bids := levels(t, [][2]string{{"99.9", "200"}, {"99.8", "150"}, {"99.7", "100"}})
	asks := levels(t, [][2]string{{"100.0", "500"}, {"100.1", "300"}, {"100.2", "1000"}, {"100.3", "200"}})

	hist := History{ImbalanceHistory: model.NewFloatRing(model.ImbalanceHistoryCapacity)}
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)

	if result.Class != model.StrongSell {
		t.Errorf("class = %v, want STRONG_SELL", result.Class)
	}
	var scalp *model.TradeSuggestion
	for i := range result.Suggestions {
		if result.Suggestions[i].Kind == model.SuggestionScalp {
			scalp = &result.Suggestions[i]
		}
	}
	if scalp == nil || scalp.Side != model.TradeShort {
		t.Errorf("expected SHORT scalp suggestion, got %+v", scalp)
	}
}

func TestAnalyze_DeadBalance(t *testing.T) {
	bids := levels(t, [][2]string{{"10.00", "100"}})
	asks := levels(t, [][2]string{{"10.01", "100"}})

	hist := History{ImbalanceHistory: model.NewFloatRing(model.ImbalanceHistoryCapacity)}
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)

	// r = 1000/1001, so the score is (r-1)*100 ≈ -0.0999.
	if want := (1000.0/1001.0 - 1) * 100; !approxEqual(result.Components.Imbalance, want, 1e-9) {
		t.Errorf("imbalance score = %v, want ~%v", result.Components.Imbalance, want)
	}
	if result.Components.Momentum != 0 {
		t.Errorf("momentum score = %v, want 0 (< 10 samples)", result.Components.Momentum)
	}
	if !approxEqual(result.SpreadBps, 10, 0.1) {
		t.Errorf("spread_bps = %v, want ~10", result.SpreadBps)
	}
	if result.Components.Spread != 0 {
		t.Errorf("spread score = %v, want 0", result.Components.Spread)
	}
	if result.Class != model.Neutral {
		t.Errorf("class = %v, want NEUTRAL", result.Class)
	}
}

func TestAnalyze_EmptyBookIsNeutral(t *testing.T) {
	hist := History{ImbalanceHistory: model.NewFloatRing(model.ImbalanceHistoryCapacity)}
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, nil, nil, nil, hist)
	if result.Class != model.Neutral || result.Reason == "" {
		t.Errorf("expected neutral result with a reason, got %+v", result)
	}
}

func TestAnalyze_MomentumReflectsContinuousHistory(t *testing.T) {
	ring := model.NewFloatRing(model.ImbalanceHistoryCapacity)
	hist := History{ImbalanceHistory: ring}
	bids := levels(t, [][2]string{{"100.0", "10"}})
	asks := levels(t, [][2]string{{"100.1", "10"}})

	// Feed 25 snapshots to build history, simulating reconnect not resetting it.
	for i := 0; i < 25; i++ {
		Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)
	}
	if ring.Len() != 25 {
		t.Fatalf("ring length = %d, want 25", ring.Len())
	}

	// "Reconnect": a fresh Analyze call reusing the same ring must not reset it.
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)
	if ring.Len() != 26 {
		t.Errorf("ring length after reconnect = %d, want 26 (preserved, not reset)", ring.Len())
	}
	_ = result
}

func TestAnalyze_LiquidityZoneClustering(t *testing.T) {
	bids := levels(t, [][2]string{{"90.00", "2000"}, {"89.99", "1800"}, {"89.98", "1900"}})
	asks := levels(t, [][2]string{{"100.1", "10"}})
	// Force mid to 100 by pairing with a synthetic best bid near 100, but the
	// spec scenario anchors mid at 100 with bids far below; approximate with
	// an explicit best bid so mid lands close to 100.
	bids = append([]model.PriceLevel{mustLevel(t, "99.9", "1")}, bids...)

	hist := History{ImbalanceHistory: model.NewFloatRing(model.ImbalanceHistoryCapacity)}
	result := Analyze(model.Instrument{Venue: model.VenueBingX, Symbol: "TEST"}, bids, asks, nil, hist)

	if len(result.SupportZones) == 0 {
		t.Fatalf("expected at least one support zone")
	}
	found := false
	for _, z := range result.SupportZones {
		if z.Count >= 3 && z.IsMajor {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a major zone combining the three clustered bid levels, got %+v", result.SupportZones)
	}
}

func mustLevel(t *testing.T, p, q string) model.PriceLevel {
	t.Helper()
	lvl, err := model.NewLevel(p, q)
	if err != nil {
		t.Fatal(err)
	}
	return lvl
}
