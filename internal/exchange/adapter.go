// Package exchange defines the venue-agnostic Adapter contract. Each venue
// lives in its own subpackage (bingx, blofin, hyperliquid) and implements
// Adapter; polymorphism across venues is expressed through this interface,
// not a shared base type.
package exchange

import (
	"context"
	"errors"

	"flowradar/internal/model"
)

// ErrConnectionLost is returned by Run when the transport closes, whether
// from a network error, a missed heartbeat, or a server-initiated close.
// The adapter never reconnects itself; that policy lives in the Watcher.
var ErrConnectionLost = errors.New("exchange: connection lost")

// SubscribeRejected wraps a venue's negative subscription acknowledgement.
type SubscribeRejected struct {
	Reason string
}

func (e *SubscribeRejected) Error() string {
	return "exchange: subscribe rejected: " + e.Reason
}

// EventKind tags the dynamic type carried by a NormalizedEvent.
type EventKind int

const (
	EventBook EventKind = iota
	EventTrade
)

// NormalizedEvent is the common currency every venue adapter emits. Exactly
// one of Book/Trade is meaningful, selected by Kind.
type NormalizedEvent struct {
	Kind  EventKind
	Book  model.BookSnapshot
	Trade model.Trade
}

// Adapter is the capability set a venue implementation must provide:
// connect, subscribe, stream, close. Run blocks for the lifetime of one
// connection attempt and returns when that attempt ends: a wrapped
// ErrConnectionLost when a read fails, the dial or subscribe-write error, or
// ctx's error. None of the venue adapters returns a SubscribeRejected; a
// negative subscription acknowledgement is logged by the blofin adapter and
// ignored by the others. The caller is responsible for backoff and retry.
type Adapter interface {
	// Run dials, subscribes to symbols, and pumps NormalizedEvents onto out
	// until ctx is cancelled or the connection is lost. Parse failures on
	// individual messages are swallowed, not surfaced.
	Run(ctx context.Context, symbols []string, out chan<- NormalizedEvent) error

	// Venue identifies which of the three venues this adapter speaks.
	Venue() model.Venue
}
