package model

import "github.com/shopspring/decimal"

// PriceLevel is a single resting order book level. Wire strings are parsed
// into decimal.Decimal; downstream signal math converts to float64 (see
// internal/signal).
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// ValueQuote returns price*quantity in quote currency.
func (l PriceLevel) ValueQuote() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// PriceFloat and QuantityFloat are convenience accessors for the signal
// engine, which operates entirely in float64.
func (l PriceLevel) PriceFloat() float64 {
	f, _ := l.Price.Float64()
	return f
}

func (l PriceLevel) QuantityFloat() float64 {
	f, _ := l.Quantity.Float64()
	return f
}

func (l PriceLevel) ValueQuoteFloat() float64 {
	f, _ := l.ValueQuote().Float64()
	return f
}

// NewLevel builds a PriceLevel from wire strings, the shape every venue
// adapter receives from its exchange's JSON payload.
func NewLevel(priceStr, qtyStr string) (PriceLevel, error) {
	p, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceLevel{}, err
	}
	q, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return PriceLevel{}, err
	}
	return PriceLevel{Price: p, Quantity: q}, nil
}
