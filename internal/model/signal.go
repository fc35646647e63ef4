package model

import "time"

type SignalClass string

const (
	StrongBuy  SignalClass = "STRONG_BUY"
	Buy        SignalClass = "BUY"
	Neutral    SignalClass = "NEUTRAL"
	Sell       SignalClass = "SELL"
	StrongSell SignalClass = "STRONG_SELL"
)

// ComponentScores holds each weighted sub-score feeding the final score, kept
// around mostly for observability and tests.
type ComponentScores struct {
	Imbalance       float64
	WeightedPressure float64
	Wall            float64
	Spread          float64
	Flow            float64
	Momentum        float64
}

// LiquidityZone is a cluster of nearby book levels on one side, used to
// surface support/resistance for reversal suggestions.
type LiquidityZone struct {
	Side             Side
	AnchorPrice      float64
	TotalVolumeQuote float64
	Count            int
	IsMajor          bool
	DistancePct      float64
}

type SuggestionKind string

const (
	SuggestionScalp    SuggestionKind = "scalp"
	SuggestionReversal SuggestionKind = "reversal"
)

type TradeSide string

const (
	TradeLong  TradeSide = "LONG"
	TradeShort TradeSide = "SHORT"
)

type TradeSuggestion struct {
	Kind       SuggestionKind
	Side       TradeSide
	Entry      float64
	Target     float64
	Stop       float64
	Confidence float64
}

// SignalResult is the deterministic output of the Signal Engine for one book
// update. It is a pure function of the snapshot, the recent-trades window,
// and the imbalance history — nothing else.
type SignalResult struct {
	Instrument  Instrument
	Score       float64
	Components  ComponentScores
	Class       SignalClass
	Confidence  float64
	MidPrice    float64
	SpreadBps   float64
	SupportZones []LiquidityZone
	ResistanceZones []LiquidityZone
	Suggestions []TradeSuggestion
	Reason      string
	ComputedAt  time.Time
}
