package model

import "time"

type AlertKind string

const (
	AlertWhaleTrade   AlertKind = "whale_trade"
	AlertLargeTrade   AlertKind = "large_trade"
	AlertWallDetected AlertKind = "wall_detected"
	AlertImbalance    AlertKind = "imbalance"
)

// AlertFingerprint identifies the dedup key plus the time it last fired.
type AlertFingerprint struct {
	Instrument Instrument
	Kind       AlertKind
	Side       Side
	At         time.Time
}

// Matches reports whether two fingerprints share the same dedup identity,
// ignoring timestamp.
func (f AlertFingerprint) Matches(other AlertFingerprint) bool {
	return f.Instrument == other.Instrument && f.Kind == other.Kind && f.Side == other.Side
}

// WhaleAlert is one emitted alert event, bounded to a 500-entry ring per
// analyzer (see internal/analyzer).
type WhaleAlert struct {
	Instrument  Instrument
	Kind        AlertKind
	Side        Side
	ValueQuote  float64
	Price       float64
	At          time.Time
	DetailsText string
}
