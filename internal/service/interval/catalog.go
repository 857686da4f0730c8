package interval

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedInterval is returned when an exchange has no mapping for a token or duration.
var ErrUnsupportedInterval = errors.New("unsupported interval")

// Catalog maps exchange-native interval tokens to canonical seconds and back.
// It is immutable after construction and safe for concurrent use.
type Catalog struct {
	bySeconds map[string]map[int64]string
	byToken   map[string]map[string]int64
}

// NewCatalog builds a catalog from exchange -> token -> seconds tables.
// Every table must be a bijection.
func NewCatalog(tables map[string]map[string]int64) (*Catalog, error) {
	c := &Catalog{
		bySeconds: make(map[string]map[int64]string, len(tables)),
		byToken:   make(map[string]map[string]int64, len(tables)),
	}
	for exchange, table := range tables {
		ex := normalize(exchange)
		tokens := make(map[string]int64, len(table))
		seconds := make(map[int64]string, len(table))
		for token, s := range table {
			if token == "" || s <= 0 {
				return nil, fmt.Errorf("interval table %s: invalid entry %q=%d", exchange, token, s)
			}
			if prev, dup := seconds[s]; dup {
				return nil, fmt.Errorf("interval table %s: %q and %q both map to %ds", exchange, prev, token, s)
			}
			tokens[token] = s
			seconds[s] = token
		}
		c.byToken[ex] = tokens
		c.bySeconds[ex] = seconds
	}
	return c, nil
}

// Default returns the catalog for the built-in exchanges.
func Default() *Catalog {
	c, err := NewCatalog(map[string]map[string]int64{
		"huobi":   huobiIntervals,
		"binance": binanceIntervals,
		"kucoin":  kucoinIntervals,
	})
	if err != nil {
		panic(err)
	}
	return c
}

// SecondsOf returns the canonical duration for an exchange-native token.
func (c *Catalog) SecondsOf(exchange, token string) (int64, error) {
	s, ok := c.byToken[normalize(exchange)][token]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no interval %q", ErrUnsupportedInterval, exchange, token)
	}
	return s, nil
}

// TokenOf returns the exchange-native token for a canonical duration.
func (c *Catalog) TokenOf(exchange string, seconds int64) (string, error) {
	t, ok := c.bySeconds[normalize(exchange)][seconds]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %ds interval", ErrUnsupportedInterval, exchange, seconds)
	}
	return t, nil
}

// Supported lists the canonical durations an exchange offers, ascending.
func (c *Catalog) Supported(exchange string) []int64 {
	table := c.bySeconds[normalize(exchange)]
	out := make([]int64, 0, len(table))
	for s := range table {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check fails unless every exchange offers seconds, naming what each
// unsupported exchange offers instead.
func (c *Catalog) Check(exchanges []string, seconds int64) error {
	var errs []error
	for _, ex := range exchanges {
		if _, err := c.TokenOf(ex, seconds); err != nil {
			errs = append(errs, fmt.Errorf("%w (supported: %v)", err, c.Supported(ex)))
		}
	}
	return errors.Join(errs...)
}

func normalize(exchange string) string { return strings.ToLower(strings.TrimSpace(exchange)) }
