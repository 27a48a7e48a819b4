package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// parseNumber converts one of Bybit's string encoded numbers. Empty strings
// are zero; the exchange omits fields that do not apply.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// number is parseNumber for optional fields.
func number(s string) float64 {
	v, _ := parseNumber(s)
	return v
}

// percent converts a fractional change such as "0.0213" to percent.
func percent(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Shift(2).InexactFloat64()
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// parseLevels converts [[price, size], ...] pairs, skipping malformed rows.
func parseLevels(raw [][]string) ([]levelPair, error) {
	out := make([]levelPair, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		price, err := parseNumber(row[0])
		if err != nil {
			return nil, err
		}
		qty, err := parseNumber(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, levelPair{price, qty})
	}
	return out, nil
}

type levelPair struct {
	price, qty float64
}

var klineIntervals = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

var nativeIntervals = map[string]bool{
	"1": true, "3": true, "5": true, "15": true, "30": true, "60": true, "120": true,
	"240": true, "360": true, "720": true, "D": true, "W": true, "M": true,
}

// klineInterval maps a conventional interval ("1h", "1d") to the exchange code ("60", "D").
func klineInterval(interval string) (string, error) {
	if code, ok := klineIntervals[interval]; ok {
		return code, nil
	}
	if nativeIntervals[interval] {
		return interval, nil
	}
	return "", fmt.Errorf("unsupported kline interval %q", interval)
}
