package market

import "strings"

// symbolAliases maps legacy and provider-specific tickers onto the
// canonical form used everywhere downstream (persistence, bot votes,
// outcome tracking). Kept static: provider quirks change rarely and a
// lookup must never require I/O.
var symbolAliases = map[string]string{
	"MIOTA": "IOTA",
	"XBT":   "BTC",
	"BCC":   "BCH",
	"MATIC": "POL",
	"NANO":  "XNO",
	"LEND":  "AAVE",
	"FTM":   "S",
	"AGIX":  "FET",
	"OCEAN": "FET",
}

// CanonicalSymbol normalizes a ticker: uppercase, trimmed, and mapped
// through the alias table.
func CanonicalSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := symbolAliases[s]; ok {
		return canonical
	}
	return s
}
