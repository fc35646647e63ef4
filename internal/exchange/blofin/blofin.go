// Package blofin implements the Venue B adapter: plain text JSON over a
// public WebSocket, with a literal "ping"/"pong" application heartbeat sent
// by the client every 25s. Order books arrive as 5-level snapshots
// (books5), so every depth-dependent computation downstream simply sees
// fewer levels than the other two venues — no special casing needed here.
package blofin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"flowradar/internal/exchange"
	"flowradar/internal/model"
)

const defaultWSURL = "wss://openapi.blofin.com/ws/public"

const (
	readDeadline = 40 * time.Second
	pingInterval = 25 * time.Second
)

type Adapter struct {
	url string
}

func New() *Adapter {
	return &Adapter{url: defaultWSURL}
}

func (a *Adapter) Venue() model.Venue { return model.VenueBloFin }

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

func (a *Adapter) Run(ctx context.Context, symbols []string, out chan<- exchange.NormalizedEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("blofin: dial: %w", err)
	}
	defer conn.Close()

	args := make([]subArg, 0, len(symbols)*2)
	for _, sym := range symbols {
		args = append(args, subArg{Channel: "trades", InstID: sym}, subArg{Channel: "books5", InstID: sym})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return fmt.Errorf("blofin: subscribe: %w", err)
	}

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", exchange.ErrConnectionLost, err)
		}
		if err := handleMessage(raw, out); err != nil {
			log.Printf("[blofin] drop malformed message: %v", err)
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func handleMessage(raw []byte, out chan<- exchange.NormalizedEvent) error {
	if string(raw) == "pong" {
		return nil
	}

	var envelope struct {
		Event string `json:"event"`
		Msg   string `json:"msg"`
		Arg   struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}

	switch envelope.Event {
	case "subscribe", "unsubscribe":
		return nil
	case "error":
		log.Printf("[blofin] ws error: %s", envelope.Msg)
		return nil
	}

	if len(envelope.Data) == 0 {
		return nil
	}

	switch envelope.Arg.Channel {
	case "trades":
		return parseTrades(envelope.Data, envelope.Arg.InstID, out)
	case "books5":
		return parseBook(envelope.Data, envelope.Arg.InstID, out)
	}
	return nil
}

func parseTrades(raw json.RawMessage, symbol string, out chan<- exchange.NormalizedEvent) error {
	var items []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"`
		TS    string `json:"ts"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	for _, it := range items {
		lvl, err := model.NewLevel(it.Price, it.Size)
		if err != nil {
			continue
		}
		side := model.SideBuy
		if it.Side == "sell" {
			side = model.SideSell
		}
		var occurred time.Time
		if ms, err := parseMillis(it.TS); err == nil {
			occurred = time.UnixMilli(ms)
		} else {
			occurred = time.Now()
		}
		trade := model.Trade{
			Instrument: model.Instrument{Venue: model.VenueBloFin, Symbol: symbol},
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			Side:       side,
			OccurredAt: occurred,
		}
		select {
		case out <- exchange.NormalizedEvent{Kind: exchange.EventTrade, Trade: trade}:
		default:
			log.Printf("[blofin] trade channel full, dropping %s trade", symbol)
		}
	}
	return nil
}

type books5Payload struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func parseBook(raw json.RawMessage, symbol string, out chan<- exchange.NormalizedEvent) error {
	var payload books5Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// books5 may arrive as a single-item list instead of an object.
		var list []books5Payload
		if err2 := json.Unmarshal(raw, &list); err2 != nil || len(list) == 0 {
			return err
		}
		payload = list[0]
	}

	book := model.BookSnapshot{
		Instrument: model.Instrument{Venue: model.VenueBloFin, Symbol: symbol},
		ReceivedAt: time.Now(),
	}
	for _, b := range payload.Bids {
		lvl, err := model.NewLevel(b[0], b[1])
		if err != nil {
			continue
		}
		book.Bids = append(book.Bids, lvl)
	}
	for _, a := range payload.Asks {
		lvl, err := model.NewLevel(a[0], a[1])
		if err != nil {
			continue
		}
		book.Asks = append(book.Asks, lvl)
	}
	select {
	case out <- exchange.NormalizedEvent{Kind: exchange.EventBook, Book: book}:
	default:
		log.Printf("[blofin] book channel full, dropping %s snapshot", symbol)
	}
	return nil
}

func parseMillis(s string) (int64, error) {
	var ms int64
	_, err := fmt.Sscanf(s, "%d", &ms)
	return ms, err
}
