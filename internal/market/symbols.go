package market

import "strings"

// DefaultInstruments maps asset ids to the primary provider's linear
// instrument. Assets missing here are resolved by the fallback provider only.
var DefaultInstruments = map[string]string{
	"bitcoin":       "BTCUSDT",
	"ethereum":      "ETHUSDT",
	"solana":        "SOLUSDT",
	"binancecoin":   "BNBUSDT",
	"ripple":        "XRPUSDT",
	"cardano":       "ADAUSDT",
	"dogecoin":      "DOGEUSDT",
	"avalanche-2":   "AVAXUSDT",
	"polkadot":      "DOTUSDT",
	"chainlink":     "LINKUSDT",
	"litecoin":      "LTCUSDT",
	"tron":          "TRXUSDT",
	"toncoin":       "TONUSDT",
	"near":          "NEARUSDT",
	"uniswap":       "UNIUSDT",
	"aptos":         "APTUSDT",
	"arbitrum":      "ARBUSDT",
	"optimism":      "OPUSDT",
	"sui":           "SUIUSDT",
	"pepe":          "1000PEPEUSDT",
	"shiba-inu":     "SHIB1000USDT",
	"matic-network": "MATICUSDT",
}

// tickerAliases maps exchange tickers to asset ids.
var tickerAliases = map[string]string{
	"btc": "bitcoin", "xbt": "bitcoin",
	"eth":   "ethereum",
	"sol":   "solana",
	"bnb":   "binancecoin",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"avax":  "avalanche-2",
	"dot":   "polkadot",
	"link":  "chainlink",
	"ltc":   "litecoin",
	"trx":   "tron",
	"ton":   "toncoin",
	"near":  "near",
	"uni":   "uniswap",
	"apt":   "aptos",
	"arb":   "arbitrum",
	"op":    "optimism",
	"sui":   "sui",
	"pepe":  "pepe",
	"shib":  "shiba-inu",
	"matic": "matic-network",
}

var quoteSuffixes = []string{"usdt", "usdc", "usd"}

// NormalizeSymbol turns user input ("BTC", "btcusdt", "BTC/USDT", " Bitcoin ")
// into a lower-case asset id. Unknown input is returned lower-cased and trimmed.
func NormalizeSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	if id, ok := tickerAliases[s]; ok {
		return id
	}

	for _, sep := range []string{"/", "_", "-"} {
		if base, quote, found := strings.Cut(s, sep); found && isQuote(quote) {
			if id, ok := tickerAliases[base]; ok {
				return id
			}
		}
	}
	for _, q := range quoteSuffixes {
		if base, found := strings.CutSuffix(s, q); found && base != "" {
			if id, ok := tickerAliases[base]; ok {
				return id
			}
		}
	}
	return s
}

func isQuote(s string) bool {
	for _, q := range quoteSuffixes {
		if s == q {
			return true
		}
	}
	return false
}
