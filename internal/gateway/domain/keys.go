package domain

import "strings"

// MarketDataKey is the equivalence class deciding whether two market data
// subscribe requests can share one physical subscription. Security-keyed
// types fill SecurityID and Arg; news/board types fill Scope instead. Scope
// and Arg are case-folded so "TQBR" and "tqbr" collapse to one key.
type MarketDataKey struct {
	DataType   MarketDataType
	SecurityID int64
	Arg        string
	Scope      string
}

// NewMarketDataKey derives the subscription key for a market data request.
// When the venue cannot subscribe per security, the security id is dropped
// from the key so all securities share one physical stream.
func NewMarketDataKey(m *MarketDataMessage, bySecurity bool) MarketDataKey {
	if !m.DataType.RequiresSecurity() {
		return MarketDataKey{
			DataType: m.DataType,
			Scope:    strings.ToLower(m.Scope()),
		}
	}
	sec := m.SecurityID
	if !bySecurity {
		sec = 0
	}
	return MarketDataKey{
		DataType:   m.DataType,
		SecurityID: sec,
		Arg:        strings.ToLower(m.Arg),
	}
}

// PortfolioKey folds a portfolio name into its case-insensitive key.
func PortfolioKey(name string) string {
	return strings.ToLower(name)
}
