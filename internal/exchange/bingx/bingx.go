// Package bingx implements the Venue A adapter: gzip-framed JSON over a
// public swap-market WebSocket, with a ping/pong heartbeat answered at the
// application level in two possible shapes.
package bingx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"flowradar/internal/exchange"
	"flowradar/internal/model"
)

const defaultWSURL = "wss://open-api-swap.bingx.com/swap-market"

const readDeadline = 45 * time.Second

// Adapter speaks the BingX swap WS protocol.
type Adapter struct {
	url string
}

func New() *Adapter {
	return &Adapter{url: defaultWSURL}
}

func (a *Adapter) Venue() model.Venue { return model.VenueBingX }

func (a *Adapter) Run(ctx context.Context, symbols []string, out chan<- exchange.NormalizedEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("bingx: dial: %w", err)
	}
	defer conn.Close()

	for _, sym := range symbols {
		if err := sendSub(conn, "depth_"+sym, sym+"@depth20@500ms"); err != nil {
			return fmt.Errorf("bingx: subscribe depth %s: %w", sym, err)
		}
		if err := sendSub(conn, "trade_"+sym, sym+"@trade"); err != nil {
			return fmt.Errorf("bingx: subscribe trade %s: %w", sym, err)
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
		if err := handleMessage(conn, raw, out); err != nil {
			log.Printf("[bingx] drop malformed message: %v", err)
		}
	}
}

func sendSub(conn *websocket.Conn, id, dataType string) error {
	msg := map[string]string{"id": id, "reqType": "sub", "dataType": dataType}
	return conn.WriteJSON(msg)
}

func decompress(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		// Not gzipped; assume plain JSON.
		return raw, nil
	}
	defer r.Close()
	return io.ReadAll(r)
}

func handleMessage(conn *websocket.Conn, raw []byte, out chan<- exchange.NormalizedEvent) error {
	plain, err := decompress(raw)
	if err != nil {
		plain = raw
	}

	var envelope struct {
		Ping     json.Number `json:"ping"`
		Code     *int        `json:"code"`
		Msg      string      `json:"msg"`
		PingTime int64       `json:"pingTime"`
		ID       string      `json:"id"`
		DataType string      `json:"dataType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(plain, &envelope); err != nil {
		return err
	}

	if envelope.Ping != "" {
		return conn.WriteJSON(map[string]json.Number{"pong": envelope.Ping})
	}
	if envelope.Code != nil && *envelope.Code == 0 && envelope.Msg == "Ping" {
		pt := envelope.PingTime
		if pt == 0 {
			pt = time.Now().UnixMilli()
		}
		return conn.WriteJSON(map[string]int64{"pong": pt})
	}
	if envelope.ID != "" && envelope.DataType == "" {
		return nil // subscription ack
	}

	symbol := envelope.DataType
	if idx := strings.Index(symbol, "@"); idx >= 0 {
		symbol = symbol[:idx]
	}

	switch {
	case strings.Contains(envelope.DataType, "@depth") && len(envelope.Data) > 0:
		return parseBook(envelope.Data, symbol, out)
	case strings.Contains(envelope.DataType, "@trade") && len(envelope.Data) > 0:
		return parseTrades(envelope.Data, symbol, out)
	}
	return nil
}

func parseBook(raw json.RawMessage, symbol string, out chan<- exchange.NormalizedEvent) error {
	var payload struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	book := model.BookSnapshot{
		Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: symbol},
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
		log.Printf("[bingx] book channel full, dropping %s snapshot", symbol)
	}
	return nil
}

func parseTrades(raw json.RawMessage, symbol string, out chan<- exchange.NormalizedEvent) error {
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err != nil {
		asList = []json.RawMessage{raw}
	}
	for _, item := range asList {
		trade, ok := parseOneTrade(item, symbol)
		if !ok {
			continue
		}
		select {
		case out <- exchange.NormalizedEvent{Kind: exchange.EventTrade, Trade: trade}:
		default:
			log.Printf("[bingx] trade channel full, dropping %s trade", symbol)
		}
	}
	return nil
}

func parseOneTrade(raw json.RawMessage, symbol string) (model.Trade, bool) {
	var asObj struct {
		P string `json:"p"`
		Q string `json:"q"`
		M bool   `json:"m"`
		T int64  `json:"T"`
	}
	if err := json.Unmarshal(raw, &asObj); err == nil && asObj.P != "" {
		return buildTrade(symbol, asObj.P, asObj.Q, asObj.M, asObj.T)
	}

	var asArr []json.RawMessage
	if err := json.Unmarshal(raw, &asArr); err == nil && len(asArr) >= 4 {
		var ts int64
		var p, q string
		var m bool
		json.Unmarshal(asArr[0], &ts)
		json.Unmarshal(asArr[1], &p)
		json.Unmarshal(asArr[2], &q)
		json.Unmarshal(asArr[3], &m)
		return buildTrade(symbol, p, q, m, ts)
	}
	return model.Trade{}, false
}

func buildTrade(symbol, priceStr, qtyStr string, isSell bool, ts int64) (model.Trade, bool) {
	lvl, err := model.NewLevel(priceStr, qtyStr)
	if err != nil {
		return model.Trade{}, false
	}
	side := model.SideBuy
	if isSell {
		side = model.SideSell
	}
	var occurred time.Time
	if ts > 1_000_000_000_000 {
		occurred = time.UnixMilli(ts)
	} else if ts > 0 {
		occurred = time.Unix(ts, 0)
	} else {
		occurred = time.Now()
	}
	return model.Trade{
		Instrument: model.Instrument{Venue: model.VenueBingX, Symbol: symbol},
		Price:      lvl.Price,
		Quantity:   lvl.Quantity,
		Side:       side,
		OccurredAt: occurred,
	}, true
}
