package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSymbolsDropsExcludedAndHalted(t *testing.T) {
	listing := []models.SymbolInfo{
		{Exchange: "binance", Symbol: "BTCUSDT", Status: "TRADING", Tradable: true},
		{Exchange: "binance", Symbol: "ETHUSDT", Status: "BREAK", Tradable: false},
	}
	assert.Empty(t, SelectSymbols(listing, []string{"BTCUSDT"}))
}

func TestSelectSymbolsCollapsesCaseVariants(t *testing.T) {
	listing := []models.SymbolInfo{
		{Symbol: "btc-usdt", Tradable: true},
		{Symbol: "BTC-USDT", Tradable: true},
		{Symbol: " BTC-USDT", Tradable: true},
		{Symbol: "ETH-USDT", Tradable: true},
	}
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, SelectSymbols(listing, nil))
}

func TestSelectSymbolsIsDeterministic(t *testing.T) {
	listing := []models.SymbolInfo{
		{Symbol: "XRPUSDT", Tradable: true},
		{Symbol: "BTCUSDT", Tradable: true},
		{Symbol: "ethusdt", Tradable: true},
		{Symbol: "BTCUSDT", Tradable: true},
		{Symbol: "", Tradable: true},
		{Symbol: "DOGEUSDT", Tradable: true},
	}
	first := SelectSymbols(listing, []string{" dogeusdt "})
	assert.Equal(t, []string{"BTCUSDT", "XRPUSDT", "ethusdt"}, first)

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SelectSymbols(listing, []string{"DOGEUSDT"}))
	}
}

func TestSymbolSourceOverrideAndMax(t *testing.T) {
	a := &stubAdapter{name: "kucoin"}
	src := NewSymbolSource(SymbolSourceConfig{
		Override:   []string{"SOL-USDT", "BTC-USDT", "ETH-USDT"},
		Exclude:    []string{"eth-usdt"},
		MaxSymbols: 1,
	}, nil, nil)

	syms, err := src.Symbols(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USDT"}, syms)

	_, _, list := a.calls()
	assert.Zero(t, list)
}

func TestSymbolSourceCachesListing(t *testing.T) {
	a := &stubAdapter{name: "huobi", symbols: []models.SymbolInfo{
		{Exchange: "huobi", Symbol: "btcusdt", Tradable: true},
		{Exchange: "huobi", Symbol: "ethusdt", Tradable: true},
	}}
	src := NewSymbolSource(SymbolSourceConfig{CacheTTL: time.Minute}, cache.NewTTLCache(), nil)

	for i := 0; i < 3; i++ {
		syms, err := src.Symbols(context.Background(), a)
		require.NoError(t, err)
		assert.Equal(t, []string{"btcusdt", "ethusdt"}, syms)
	}
	_, _, list := a.calls()
	assert.Equal(t, 1, list)
}

func TestSymbolSourceResolveSkipsFailingExchange(t *testing.T) {
	ok := &stubAdapter{name: "binance", symbols: []models.SymbolInfo{{Symbol: "BTCUSDT", Tradable: true}}}
	bad := &stubAdapter{name: "huobi", listErr: errors.New("503")}
	src := NewSymbolSource(SymbolSourceConfig{}, nil, nil)

	got := src.Resolve(context.Background(), map[string]drepo.ExchangeAdapter{
		"binance": ok,
		"huobi":   bad,
	}, []string{"binance", "huobi", "kucoin"})

	assert.Equal(t, map[string][]string{"binance": {"BTCUSDT"}}, got)
}
