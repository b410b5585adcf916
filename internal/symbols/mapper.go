package symbols

import "strings"

// PairID builds the identifier used to compare and dedupe pairs across
// collections. Both parts are upper-cased and joined as SYMBOL-BASE, so
// "btc"/"usd" and "BTC"/"USD" collapse to the same pair.
func PairID(symbol, base string) string {
	return strings.ToUpper(symbol) + "-" + strings.ToUpper(base)
}

// SplitPairID is the inverse of PairID. It splits on the last separator so
// symbols that themselves contain a dash keep it.
func SplitPairID(id string) (symbol, base string, ok bool) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
