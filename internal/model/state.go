package model

import "time"

// TradeRecord is the single consistent shape used for InstrumentState's
// recent-trades window, on both the append and the prune path. An earlier
// revision of this pipeline carried two different tuple shapes for the same
// window depending on which code path touched it, which silently zeroed
// flow-score some of the time; a single struct makes that impossible.
type TradeRecord struct {
	ValueQuote float64
	Side       Side
	OccurredAt time.Time
}

const (
	ImbalanceHistoryCapacity = 60
	RecentTradesCapacity     = 100
	RecentTradesWindow       = 60 * time.Second
)

// InstrumentState is owned exclusively by one Watcher. Nothing outside the
// Watcher goroutine touches these fields; exported snapshots handed to the
// Broadcast hub are copies.
type InstrumentState struct {
	Instrument Instrument

	BidDepthQuote   float64
	AskDepthQuote   float64
	ImbalanceRatio  float64
	SpreadBps       float64
	LargestBidLevel PriceLevel
	LargestAskLevel PriceLevel
	MidPrice        float64
	LastUpdateTS    time.Time

	ImbalanceHistory *FloatRing

	recentTrades []TradeRecord

	CumulativeDelta float64

	LastSignal *SignalResult

	LastAlertFingerprint AlertFingerprint
}

func NewInstrumentState(inst Instrument) *InstrumentState {
	return &InstrumentState{
		Instrument:       inst,
		ImbalanceHistory: NewFloatRing(ImbalanceHistoryCapacity),
	}
}

// AppendTrade records a trade in the recent-trades window, evicting entries
// older than RecentTradesWindow relative to the trade just appended, and
// capping the window at RecentTradesCapacity entries (oldest evicted first).
func (s *InstrumentState) AppendTrade(rec TradeRecord) {
	s.recentTrades = append(s.recentTrades, rec)
	s.pruneTrades(rec.OccurredAt)
}

func (s *InstrumentState) pruneTrades(now time.Time) {
	cutoff := now.Add(-RecentTradesWindow)
	i := 0
	for i < len(s.recentTrades) && s.recentTrades[i].OccurredAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.recentTrades = s.recentTrades[i:]
	}
	if over := len(s.recentTrades) - RecentTradesCapacity; over > 0 {
		s.recentTrades = s.recentTrades[over:]
	}
}

// RecentTrades returns the current window, oldest first. Callers must not
// mutate the returned slice.
func (s *InstrumentState) RecentTrades() []TradeRecord {
	return s.recentTrades
}
