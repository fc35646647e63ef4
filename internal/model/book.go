package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the three ingest sources.
type Venue string

const (
	VenueBingX        Venue = "bingx"
	VenueBloFin       Venue = "blofin"
	VenueHyperliquid  Venue = "hyperliquid"
)

// Instrument is "venue:symbol", the key used throughout the registry and
// catalog.
type Instrument struct {
	Venue  Venue
	Symbol string
}

func (i Instrument) Key() string {
	return string(i.Venue) + ":" + i.Symbol
}

// BookSnapshot is a full replacement of the top levels of both sides of an
// order book. Bids are sorted descending by price, asks ascending.
// A snapshot is consumed once and discarded by the Watcher; it is never
// merged with a previous snapshot.
type BookSnapshot struct {
	Instrument Instrument
	Bids       []PriceLevel
	Asks       []PriceLevel
	ReceivedAt time.Time
}

// Side is the aggressor side of a trade: buy lifts an ask, sell hits a bid.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed print, already normalized to the common side
// vocabulary regardless of which venue-specific encoding it arrived in.
type Trade struct {
	Instrument Instrument
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Side       Side
	OccurredAt time.Time
}

func (t Trade) ValueQuoteFloat() float64 {
	v, _ := t.Price.Mul(t.Quantity).Float64()
	return v
}
