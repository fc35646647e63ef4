// Package broadcast fans stats and alert events out to an arbitrary number
// of client sinks. A slow or disconnected sink is dropped silently; it never
// blocks delivery to the others.
package broadcast

import (
	"log"
	"sync"
	"time"

	"flowradar/internal/model"
)

// EventKind tags the envelope sent to every sink.
type EventKind string

const (
	EventStats EventKind = "stats"
	EventAlert EventKind = "alert"
)

// Envelope is what every Sink receives. Key identifies which instrument the
// event belongs to ("venue:symbol"); the WS client sink re-encodes this onto
// the wire as {type, key, data, timestamp}.
type Envelope struct {
	Type      EventKind         `json:"type"`
	Key       string            `json:"key,omitempty"`
	Stats     *statsPayload     `json:"stats,omitempty"`
	Alert     *model.WhaleAlert `json:"alert,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

type statsPayload struct {
	Instrument model.Instrument      `json:"instrument"`
	Score      float64               `json:"score"`
	Class      model.SignalClass     `json:"class"`
	Confidence float64               `json:"confidence"`
	MidPrice   float64               `json:"mid_price"`
	SpreadBps  float64               `json:"spread_bps"`
	Components model.ComponentScores `json:"components"`
}

// Sink is anything that can receive an encoded event without blocking the
// Hub. Implemented by *Client (the WS sink) and by internal/push and
// internal/notify for the secondary alert-only sinks.
type Sink interface {
	Send(Envelope) bool
}

// Hub fans events out to every registered Sink. It implements
// internal/watcher.Sink so a Watcher can publish directly into it.
type Hub struct {
	mu          sync.RWMutex
	clients     map[Sink]struct{}
	alertSinks  map[Sink]struct{}
	highSevOnly float64 // alerts with ValueQuote below this never reach alertSinks
}

func NewHub(highSeverityThreshold float64) *Hub {
	return &Hub{
		clients:     make(map[Sink]struct{}),
		alertSinks:  make(map[Sink]struct{}),
		highSevOnly: highSeverityThreshold,
	}
}

// Register adds a primary sink that receives every stats and alert event
// (a connected WebSocket client).
func (h *Hub) Register(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[s] = struct{}{}
}

func (h *Hub) Unregister(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, s)
	delete(h.alertSinks, s)
}

// RegisterAlertSink adds a secondary sink (Telegram/FCM) that only receives
// alert events whose severity is at or above the Hub's high-severity
// threshold.
func (h *Hub) RegisterAlertSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alertSinks[s] = struct{}{}
}

func (h *Hub) PublishStats(result model.SignalResult) {
	env := Envelope{
		Type: EventStats,
		Key:  result.Instrument.Key(),
		Stats: &statsPayload{
			Instrument: result.Instrument,
			Score:      result.Score,
			Class:      result.Class,
			Confidence: result.Confidence,
			MidPrice:   result.MidPrice,
			SpreadBps:  result.SpreadBps,
			Components: result.Components,
		},
		Timestamp: time.Now().UnixMilli(),
	}
	h.broadcast(env)
}

func (h *Hub) PublishAlert(alert model.WhaleAlert) {
	a := alert
	env := Envelope{Type: EventAlert, Key: alert.Instrument.Key(), Alert: &a, Timestamp: time.Now().UnixMilli()}
	h.broadcast(env)

	if alert.ValueQuote < h.highSevOnly {
		return
	}
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.alertSinks))
	for s := range h.alertSinks {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()
	for _, s := range sinks {
		if !s.Send(env) {
			log.Printf("[broadcast] alert sink rejected high-severity alert for %s", alert.Instrument.Key())
		}
	}
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.clients))
	for s := range h.clients {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	var dead []Sink
	for _, s := range sinks {
		if !s.Send(env) {
			dead = append(dead, s)
		}
	}
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, s := range dead {
		delete(h.clients, s)
	}
	h.mu.Unlock()
}
