// Package hyperliquid implements the Venue C adapter: plain JSON over a
// single WebSocket, one subscription per (channel, coin) pair. The source
// client mapped trade sides with a buggy string-replace
// (".lower().replace('b','buy').replace('a','sell')"); this adapter maps
// B/A to buy/sell explicitly instead.
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"flowradar/internal/exchange"
	"flowradar/internal/model"
)

const defaultWSURL = "wss://api.hyperliquid.xyz/ws"

const readDeadline = 40 * time.Second

type Adapter struct {
	url string
}

func New() *Adapter {
	return &Adapter{url: defaultWSURL}
}

func (a *Adapter) Venue() model.Venue { return model.VenueHyperliquid }

type subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

func (a *Adapter) Run(ctx context.Context, symbols []string, out chan<- exchange.NormalizedEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("hyperliquid: dial: %w", err)
	}
	defer conn.Close()

	for _, coin := range symbols {
		if err := subscribe(conn, "l2Book", coin); err != nil {
			return fmt.Errorf("hyperliquid: subscribe l2Book %s: %w", coin, err)
		}
		if err := subscribe(conn, "trades", coin); err != nil {
			return fmt.Errorf("hyperliquid: subscribe trades %s: %w", coin, err)
		}
	}

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
			log.Printf("[hyperliquid] drop malformed message: %v", err)
		}
	}
}

func subscribe(conn *websocket.Conn, kind, coin string) error {
	msg := map[string]any{
		"method":       "subscribe",
		"subscription": subscription{Type: kind, Coin: coin},
	}
	return conn.WriteJSON(msg)
}

func handleMessage(raw []byte, out chan<- exchange.NormalizedEvent) error {
	var envelope struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}

	switch envelope.Channel {
	case "l2Book":
		return parseBook(envelope.Data, out)
	case "trades":
		return parseTrades(envelope.Data, out)
	}
	return nil
}

type hlLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

func parseBook(raw json.RawMessage, out chan<- exchange.NormalizedEvent) error {
	var payload struct {
		Coin   string        `json:"coin"`
		Levels [][]hlLevel   `json:"levels"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	book := model.BookSnapshot{
		Instrument: model.Instrument{Venue: model.VenueHyperliquid, Symbol: payload.Coin},
		ReceivedAt: time.Now(),
	}
	if len(payload.Levels) > 0 {
		for _, b := range payload.Levels[0] {
			lvl, err := model.NewLevel(b.Px, b.Sz)
			if err != nil {
				continue
			}
			book.Bids = append(book.Bids, lvl)
		}
	}
	if len(payload.Levels) > 1 {
		for _, a := range payload.Levels[1] {
			lvl, err := model.NewLevel(a.Px, a.Sz)
			if err != nil {
				continue
			}
			book.Asks = append(book.Asks, lvl)
		}
	}
	select {
	case out <- exchange.NormalizedEvent{Kind: exchange.EventBook, Book: book}:
	default:
		log.Printf("[hyperliquid] book channel full, dropping %s snapshot", payload.Coin)
	}
	return nil
}

func parseTrades(raw json.RawMessage, out chan<- exchange.NormalizedEvent) error {
	var items []struct {
		Coin string `json:"coin"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		var one struct {
			Coin string `json:"coin"`
			Px   string `json:"px"`
			Sz   string `json:"sz"`
			Side string `json:"side"`
			Time int64  `json:"time"`
		}
		if err2 := json.Unmarshal(raw, &one); err2 != nil {
			return err
		}
		items = append(items, one)
	}

	for _, t := range items {
		lvl, err := model.NewLevel(t.Px, t.Sz)
		if err != nil {
			continue
		}
		side := sideFromCode(t.Side)
		occurred := time.Now()
		if t.Time > 0 {
			occurred = time.UnixMilli(t.Time)
		}
		trade := model.Trade{
			Instrument: model.Instrument{Venue: model.VenueHyperliquid, Symbol: t.Coin},
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			Side:       side,
			OccurredAt: occurred,
		}
		select {
		case out <- exchange.NormalizedEvent{Kind: exchange.EventTrade, Trade: trade}:
		default:
			log.Printf("[hyperliquid] trade channel full, dropping %s trade", t.Coin)
		}
	}
	return nil
}

func sideFromCode(code string) model.Side {
	switch strings.ToUpper(code) {
	case "A":
		return model.SideSell
	default:
		return model.SideBuy
	}
}
