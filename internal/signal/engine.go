// Package signal implements the deterministic scoring engine: six component
// scores, a weighted final score, a classification, liquidity-zone
// clustering, and scalp/reversal trade suggestions. The engine is stateless
// with respect to the current book; imbalance_history and cumulative_delta
// are owned by the caller (internal/watcher) and passed by reference.
package signal

import (
	"math"
	"sort"
	"time"

	"flowradar/internal/model"
)

const (
	imbalanceDepth   = 20
	pressureDepth    = 30
	pressureDecay    = 0.1
	whaleWallUSD     = 100_000
	zoneClusterPct   = 0.15
	zoneMaxDistance  = 50.0
)

var weights = struct {
	Imbalance, Pressure, Wall, Spread, Flow, Momentum float64
}{0.25, 0.20, 0.15, 0.10, 0.20, 0.10}

// History is the subset of InstrumentState the engine needs across calls.
// The Watcher owns the real InstrumentState; this narrow view keeps the
// engine decoupled from watcher lifecycle concerns.
type History struct {
	ImbalanceHistory *model.FloatRing
	CumulativeDelta  *float64
}

// Analyze computes a SignalResult for one book snapshot plus its recent
// trade window. It is a pure function of its arguments except for the two
// History fields, which it reads and mutates exactly as the spec requires
// (append imbalance ratio, accumulate flow delta).
func Analyze(inst model.Instrument, bids, asks []model.PriceLevel, trades []model.TradeRecord, hist History) model.SignalResult {
	result := model.SignalResult{
		Instrument: inst,
		Class:      model.Neutral,
		ComputedAt: time.Now(),
	}

	if len(bids) == 0 || len(asks) == 0 {
		result.Reason = "insufficient data"
		return result
	}

	mid := (bids[0].PriceFloat() + asks[0].PriceFloat()) / 2
	result.MidPrice = mid

	imbalanceScore, bidVol, askVol, ratio := calcImbalance(bids, asks)
	result.Components.Imbalance = imbalanceScore

	result.Components.WeightedPressure = calcWeightedPressure(bids, asks, mid)

	wallScore, largestBid, largestAsk := calcWallScore(bids, asks, bidVol, askVol)
	result.Components.Wall = wallScore

	spreadScore, spreadBps := calcSpreadScore(bids, asks, mid)
	result.Components.Spread = spreadScore
	result.SpreadBps = spreadBps

	result.Components.Flow = calcFlowScore(trades, hist.CumulativeDelta)

	if hist.ImbalanceHistory != nil {
		hist.ImbalanceHistory.Push(ratio)
		result.Components.Momentum = calcMomentum(hist.ImbalanceHistory)
	}

	score := result.Components.Imbalance*weights.Imbalance +
		result.Components.WeightedPressure*weights.Pressure +
		result.Components.Wall*weights.Wall +
		result.Components.Spread*weights.Spread +
		result.Components.Flow*weights.Flow +
		result.Components.Momentum*weights.Momentum
	result.Score = score

	result.Class, result.Confidence = classify(score)

	result.SupportZones, result.ResistanceZones = findLiquidityZones(bids, asks, mid)

	result.Suggestions = generateSuggestions(result, largestBid, largestAsk)

	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sumValueQuote(levels []model.PriceLevel, depth int) float64 {
	if depth > len(levels) {
		depth = len(levels)
	}
	var total float64
	for _, l := range levels[:depth] {
		total += l.ValueQuoteFloat()
	}
	return total
}

func calcImbalance(bids, asks []model.PriceLevel) (score, bidVol, askVol, ratio float64) {
	bidVol = sumValueQuote(bids, imbalanceDepth)
	askVol = sumValueQuote(asks, imbalanceDepth)

	switch {
	case askVol == 0:
		ratio = 2.0
	case bidVol == 0:
		ratio = 0.5
	default:
		ratio = bidVol / askVol
	}

	if ratio >= 1 {
		score = math.Min(100, (ratio-1)*50)
	} else {
		score = math.Max(-100, (ratio-1)*100)
	}
	return
}

func calcWeightedPressure(bids, asks []model.PriceLevel, mid float64) float64 {
	var bidPressure, askPressure float64

	n := pressureDepth
	if n > len(bids) {
		n = len(bids)
	}
	for _, b := range bids[:n] {
		distPct := (mid - b.PriceFloat()) / mid
		weight := math.Exp(-pressureDecay * distPct * 100)
		bidPressure += b.ValueQuoteFloat() * weight
	}

	n = pressureDepth
	if n > len(asks) {
		n = len(asks)
	}
	for _, a := range asks[:n] {
		distPct := (a.PriceFloat() - mid) / mid
		weight := math.Exp(-pressureDecay * distPct * 100)
		askPressure += a.ValueQuoteFloat() * weight
	}

	total := bidPressure + askPressure
	if total == 0 {
		return 0
	}
	return (bidPressure - askPressure) / total * 100
}

func largestLevel(levels []model.PriceLevel, depth int) model.PriceLevel {
	if depth > len(levels) {
		depth = len(levels)
	}
	var best model.PriceLevel
	var bestVal float64
	for _, l := range levels[:depth] {
		if v := l.ValueQuoteFloat(); v > bestVal {
			bestVal = v
			best = l
		}
	}
	return best
}

func calcWallScore(bids, asks []model.PriceLevel, totalBid, totalAsk float64) (score float64, largestBid, largestAsk model.PriceLevel) {
	if len(bids) > 0 {
		largestBid = largestLevel(bids, imbalanceDepth)
	}
	if len(asks) > 0 {
		largestAsk = largestLevel(asks, imbalanceDepth)
	}

	largestBidUSD := largestBid.ValueQuoteFloat()
	largestAskUSD := largestAsk.ValueQuoteFloat()

	var bidWallPct, askWallPct float64
	if totalBid > 0 {
		bidWallPct = largestBidUSD / totalBid * 100
	}
	if totalAsk > 0 {
		askWallPct = largestAskUSD / totalAsk * 100
	}

	if bidWallPct > 15 {
		score += math.Min(50, bidWallPct)
	}
	if askWallPct > 15 {
		score -= math.Min(50, askWallPct)
	}
	if largestBidUSD > whaleWallUSD {
		score += 20
	}
	if largestAskUSD > whaleWallUSD {
		score -= 20
	}

	return clamp(score, -100, 100), largestBid, largestAsk
}

func calcSpreadScore(bids, asks []model.PriceLevel, mid float64) (score, spreadBps float64) {
	spread := asks[0].PriceFloat() - bids[0].PriceFloat()
	spreadBps = spread / mid * 10000

	switch {
	case spreadBps < 5:
		score = 10
	case spreadBps > 50:
		score = -10
	default:
		score = 0
	}
	return
}

func calcFlowScore(trades []model.TradeRecord, cumulativeDelta *float64) float64 {
	var buy, sell float64
	for _, t := range trades {
		if t.Side == model.SideBuy {
			buy += t.ValueQuote
		} else {
			sell += t.ValueQuote
		}
	}
	total := buy + sell
	if total == 0 {
		return 0
	}
	delta := buy - sell
	if cumulativeDelta != nil {
		*cumulativeDelta += delta
	}
	return delta / total * 100
}

func calcMomentum(history *model.FloatRing) float64 {
	samples := history.Slice()
	if len(samples) < 10 {
		return 0
	}
	recent := mean(samples[len(samples)-10:])
	older := recent
	if len(samples) >= 20 {
		older = mean(samples[:10])
	}
	if older == 0 {
		return 0
	}
	roc := (recent - older) / older
	return clamp(roc*300, -100, 100)
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func classify(score float64) (model.SignalClass, float64) {
	confidence := math.Min(100, math.Abs(score)*2)
	switch {
	case score >= 40:
		return model.StrongBuy, confidence
	case score >= 20:
		return model.Buy, confidence
	case score <= -40:
		return model.StrongSell, confidence
	case score <= -20:
		return model.Sell, confidence
	default:
		return model.Neutral, confidence
	}
}

type clusterAccum struct {
	volume float64
	count  int
	prices []float64
}

func findLiquidityZones(bids, asks []model.PriceLevel, mid float64) (support, resistance []model.LiquidityZone) {
	if mid == 0 {
		return nil, nil
	}
	bucketWidth := mid * zoneClusterPct / 100

	support = clusterSide(bids, mid, bucketWidth, true)
	resistance = clusterSide(asks, mid, bucketWidth, false)
	return support, resistance
}

func clusterSide(levels []model.PriceLevel, mid, bucketWidth float64, isBid bool) []model.LiquidityZone {
	clusters := make(map[float64]*clusterAccum)
	var order []float64

	for _, l := range levels {
		price := l.PriceFloat()
		var distPct float64
		if isBid {
			distPct = (mid - price) / mid * 100
		} else {
			distPct = (price - mid) / mid * 100
		}
		if distPct < 0 || distPct > zoneMaxDistance {
			continue
		}
		key := math.Round(price/bucketWidth) * bucketWidth
		acc, ok := clusters[key]
		if !ok {
			acc = &clusterAccum{}
			clusters[key] = acc
			order = append(order, key)
		}
		acc.volume += l.ValueQuoteFloat()
		acc.count++
		acc.prices = append(acc.prices, price)
	}

	var totalVolume float64
	for _, acc := range clusters {
		totalVolume += acc.volume
	}
	if totalVolume == 0 {
		totalVolume = 1
	}

	side := model.SideSell
	if isBid {
		side = model.SideBuy
	}

	zones := make([]model.LiquidityZone, 0, len(order))
	for _, key := range order {
		acc := clusters[key]
		avgPrice := mean(acc.prices)
		var dist float64
		if isBid {
			dist = (mid - avgPrice) / mid * 100
		} else {
			dist = (avgPrice - mid) / mid * 100
		}
		isMajor := acc.volume > totalVolume*0.2 || acc.volume > whaleWallUSD

		zones = append(zones, model.LiquidityZone{
			Side:             side,
			AnchorPrice:      avgPrice,
			TotalVolumeQuote: acc.volume,
			Count:            acc.count,
			IsMajor:          isMajor,
			DistancePct:      dist,
		})
	}

	sort.Slice(zones, func(i, j int) bool {
		return zones[i].TotalVolumeQuote > zones[j].TotalVolumeQuote
	})
	if len(zones) > 5 {
		zones = zones[:5]
	}
	return zones
}

func generateSuggestions(result model.SignalResult, largestBid, largestAsk model.PriceLevel) []model.TradeSuggestion {
	var out []model.TradeSuggestion
	mid := result.MidPrice
	if mid == 0 {
		return out
	}

	stopDistance := math.Max(result.SpreadBps*3/10000, 0.005)
	targetDistance := stopDistance * 2

	switch {
	case result.Score >= 20:
		out = append(out, model.TradeSuggestion{
			Kind:       model.SuggestionScalp,
			Side:       model.TradeLong,
			Entry:      mid,
			Target:     mid * (1 + targetDistance),
			Stop:       mid * (1 - stopDistance),
			Confidence: math.Min(result.Confidence, 80),
		})
	case result.Score <= -20:
		out = append(out, model.TradeSuggestion{
			Kind:       model.SuggestionScalp,
			Side:       model.TradeShort,
			Entry:      mid,
			Target:     mid * (1 - targetDistance),
			Stop:       mid * (1 + stopDistance),
			Confidence: math.Min(result.Confidence, 80),
		})
	}

	var majorSupports, majorResistances []model.LiquidityZone
	for _, z := range result.SupportZones {
		if z.IsMajor {
			majorSupports = append(majorSupports, z)
		}
	}
	for _, z := range result.ResistanceZones {
		if z.IsMajor {
			majorResistances = append(majorResistances, z)
		}
	}

	nearSupport, nearResistance := -1, -1
	for i, z := range majorSupports {
		if z.DistancePct < 10 {
			nearSupport = i
			break
		}
	}
	for i, z := range majorResistances {
		if z.DistancePct < 10 {
			nearResistance = i
			break
		}
	}

	if nearSupport >= 0 {
		best := majorSupports[nearSupport]
		target := mid * (1 + best.DistancePct/100)
		if len(majorResistances) > 0 {
			target = majorResistances[0].AnchorPrice
		}
		out = append(out, model.TradeSuggestion{
			Kind:       model.SuggestionReversal,
			Side:       model.TradeLong,
			Entry:      best.AnchorPrice,
			Target:     target,
			Stop:       best.AnchorPrice * 0.97,
			Confidence: math.Min(70, best.TotalVolumeQuote/10000),
		})
	} else if nearResistance >= 0 {
		best := majorResistances[nearResistance]
		target := mid * (1 - best.DistancePct/100)
		if len(majorSupports) > 0 {
			target = majorSupports[0].AnchorPrice
		}
		out = append(out, model.TradeSuggestion{
			Kind:       model.SuggestionReversal,
			Side:       model.TradeShort,
			Entry:      best.AnchorPrice,
			Target:     target,
			Stop:       best.AnchorPrice * 1.03,
			Confidence: math.Min(70, best.TotalVolumeQuote/10000),
		})
	}

	return out
}
