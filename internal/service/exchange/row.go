package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one positional record from an exchange that returns arrays
// instead of keyed objects. Cells may be JSON numbers or quoted numbers.
type Row []json.RawMessage

func (r Row) cell(i int) (string, error) {
	if i >= len(r) {
		return "", fmt.Errorf("row has %d cells, want index %d", len(r), i)
	}
	return strings.Trim(string(r[i]), `"`), nil
}

func (r Row) Decimal(i int) (decimal.Decimal, error) {
	s, err := r.cell(i)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cell %d: %w", i, err)
	}
	return d, nil
}

func (r Row) Int64(i int) (int64, error) {
	s, err := r.cell(i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cell %d: %w", i, err)
	}
	return n, nil
}

// Decimals reads consecutive decimal cells starting at from.
func (r Row) Decimals(from int, dst ...*decimal.Decimal) error {
	for k, d := range dst {
		v, err := r.Decimal(from + k)
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

// StringRow converts an all-string row (KuCoin candles) into a Row.
func StringRow(cells []string) Row {
	r := make(Row, len(cells))
	for i, c := range cells {
		r[i] = json.RawMessage(strconv.Quote(c))
	}
	return r
}

// EpochTime converts an exchange epoch value to time, guessing the unit from its magnitude.
func EpochTime(v int64) time.Time {
	switch {
	case v > 1e17: // nanoseconds
		return time.Unix(0, v).UTC()
	case v > 1e14: // microseconds
		return time.UnixMicro(v).UTC()
	case v > 1e11: // milliseconds
		return time.UnixMilli(v).UTC()
	default:
		return time.Unix(v, 0).UTC()
	}
}
