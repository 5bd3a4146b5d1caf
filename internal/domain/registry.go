package domain

import (
	"fmt"
	"sort"
)

// SymbolRegistry is the set of known tradable symbols. It is constructed
// explicitly at startup and passed to anything that needs to validate a
// ticker; there is no process-wide cache.
type SymbolRegistry struct {
	known map[SymbolKey]Symbol
}

// NewSymbolRegistry builds a registry from the given symbols.
func NewSymbolRegistry(symbols []Symbol) *SymbolRegistry {
	known := make(map[SymbolKey]Symbol, len(symbols))
	for _, s := range symbols {
		known[s.Key()] = s
	}
	return &SymbolRegistry{known: known}
}

// Resolve validates (ticker, asset class) against the registry and returns
// the registered symbol. Unknown symbols are a configuration error.
func (r *SymbolRegistry) Resolve(ticker string, ac AssetClass) (Symbol, error) {
	s, ok := r.known[SymbolKey{Ticker: ticker, AssetClass: ac}]
	if !ok {
		return Symbol{}, fmt.Errorf("unknown symbol %s:%s", ticker, ac)
	}
	return s, nil
}

// Contains reports whether the symbol is registered.
func (r *SymbolRegistry) Contains(key SymbolKey) bool {
	_, ok := r.known[key]
	return ok
}

// Len reports the number of registered symbols.
func (r *SymbolRegistry) Len() int { return len(r.known) }

// Symbols returns the registered symbols sorted by asset class and ticker,
// so callers iterating the universe do so in a stable order.
func (r *SymbolRegistry) Symbols() []Symbol {
	out := make([]Symbol, 0, len(r.known))
	for _, s := range r.known {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetClass != out[j].AssetClass {
			return out[i].AssetClass < out[j].AssetClass
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
