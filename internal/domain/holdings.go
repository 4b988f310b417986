package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Holding is the quantity held of one asset.
type Holding struct {
	Symbol   Symbol  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// Holdings is an ordered portfolio. The order is the column order used by
// every downstream table, prediction and weight vector.
//
// On the wire Holdings is a JSON object mapping symbol to quantity; key
// order is preserved when decoding.
type Holdings []Holding

// UniformHoldings builds holdings with the same quantity for every symbol.
func UniformHoldings(symbols []Symbol, quantity float64) Holdings {
	h := make(Holdings, 0, len(symbols))
	for _, s := range symbols {
		h = append(h, Holding{Symbol: s, Quantity: quantity})
	}
	return h
}

// ParseHoldings parses "BTC:1.5,ETH:10". A bare symbol gets quantity 1.
func ParseHoldings(s string) (Holdings, error) {
	var h Holdings
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, qty, found := strings.Cut(part, ":")
		quantity := 1.0
		if found {
			q, err := strconv.ParseFloat(strings.TrimSpace(qty), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: quantity for %s: %v", ErrInvalidHoldings, sym, err)
			}
			quantity = q
		}
		h = append(h, Holding{Symbol: strings.TrimSpace(sym), Quantity: quantity})
	}
	return h, nil
}

// Symbols returns the symbols in portfolio order.
func (h Holdings) Symbols() []Symbol {
	out := make([]Symbol, len(h))
	for i, x := range h {
		out[i] = x.Symbol
	}
	return out
}

// Quantity returns the quantity held for symbol.
func (h Holdings) Quantity(symbol Symbol) (float64, bool) {
	for _, x := range h {
		if x.Symbol == symbol {
			return x.Quantity, true
		}
	}
	return 0, false
}

// Normalize upper-cases symbols and resolves exchange aliases
// (e.g. XXBT -> BTC). The receiver is not modified.
func (h Holdings) Normalize(aliases map[string]string) Holdings {
	out := make(Holdings, len(h))
	for i, x := range h {
		sym := strings.ToUpper(strings.TrimSpace(x.Symbol))
		if alias, ok := aliases[sym]; ok {
			sym = alias
		}
		out[i] = Holding{Symbol: sym, Quantity: x.Quantity}
	}
	return out
}

// Validate checks the holdings schema: at least one asset, unique
// non-empty alphanumeric symbols and finite positive quantities.
func (h Holdings) Validate() error {
	if len(h) == 0 {
		return fmt.Errorf("%w: portfolio is empty", ErrInvalidHoldings)
	}
	seen := make(map[Symbol]bool, len(h))
	for _, x := range h {
		if x.Symbol == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidHoldings)
		}
		for _, r := range x.Symbol {
			if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return fmt.Errorf("%w: symbol %q contains %q", ErrInvalidHoldings, x.Symbol, r)
			}
		}
		if seen[x.Symbol] {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalidHoldings, x.Symbol)
		}
		seen[x.Symbol] = true
		if math.IsNaN(x.Quantity) || math.IsInf(x.Quantity, 0) || x.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive, got %v", ErrInvalidHoldings, x.Symbol, x.Quantity)
		}
	}
	return nil
}

// MarshalJSON encodes holdings as an ordered JSON object.
func (h Holdings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, x := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(x.Symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(x.Quantity, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of symbol -> quantity, keeping key
// order. Duplicate keys are rejected.
func (h *Holdings) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object of symbol to quantity", ErrInvalidHoldings)
	}

	var out Holdings
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if seen[key] {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalidHoldings, key)
		}
		seen[key] = true

		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return fmt.Errorf("%w: quantity for %s: %v", ErrInvalidHoldings, key, err)
		}
		q, err := num.Float64()
		if err != nil {
			return fmt.Errorf("%w: quantity for %s: %v", ErrInvalidHoldings, key, err)
		}
		out = append(out, Holding{Symbol: key, Quantity: q})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*h = out
	return nil
}
