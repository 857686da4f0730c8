package interval

const (
	minute = 60
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
	month  = 30 * day
	year   = 365 * day
)

// Calendar months and years are pinned to 30 and 365 days so each table stays a bijection.

var huobiIntervals = map[string]int64{
	"1min":  minute,
	"5min":  5 * minute,
	"15min": 15 * minute,
	"30min": 30 * minute,
	"60min": hour,
	"4hour": 4 * hour,
	"1day":  day,
	"1week": week,
	"1mon":  month,
	"1year": year,
}

var binanceIntervals = map[string]int64{
	"1s":  1,
	"1m":  minute,
	"3m":  3 * minute,
	"5m":  5 * minute,
	"15m": 15 * minute,
	"30m": 30 * minute,
	"1h":  hour,
	"2h":  2 * hour,
	"4h":  4 * hour,
	"6h":  6 * hour,
	"8h":  8 * hour,
	"12h": 12 * hour,
	"1d":  day,
	"3d":  3 * day,
	"1w":  week,
	"1M":  month,
}

var kucoinIntervals = map[string]int64{
	"1min":   minute,
	"3min":   3 * minute,
	"5min":   5 * minute,
	"15min":  15 * minute,
	"30min":  30 * minute,
	"1hour":  hour,
	"2hour":  2 * hour,
	"4hour":  4 * hour,
	"6hour":  6 * hour,
	"8hour":  8 * hour,
	"12hour": 12 * hour,
	"1day":   day,
	"1week":  week,
	"1month": month,
}
