package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeRejects(t *testing.T) {
	for _, s := range []string{"", "yesterday", "-5"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestParseDurationDefault(t *testing.T) {
	assert.Equal(t, 90*time.Second, ParseDurationDefault("1m30s", time.Second))
	assert.Equal(t, 240*time.Second, ParseDurationDefault("240", time.Second))
	assert.Equal(t, time.Second, ParseDurationDefault("soon", time.Second))
	assert.Equal(t, time.Second, ParseDurationDefault("", time.Second))
}

func TestSplitListAndInts(t *testing.T) {
	assert.Equal(t, []string{"huobi", "kucoin"}, SplitList(" huobi, ,kucoin,"))
	assert.Nil(t, SplitList(""))
	assert.Equal(t, 5, ParseIntDefault(" 5 ", 1))
	assert.Equal(t, 1, ParseIntDefault("five", 1))
}
