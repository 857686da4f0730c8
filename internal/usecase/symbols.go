package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/cache"
	"CoinPull/pkg/logger"
)

// SelectSymbols keeps listing entries that are tradable and not excluded,
// sorted by symbol. Exclusions match case-insensitively, and symbols that
// differ only in case collapse to the first in sort order, since they share
// one log file.
func SelectSymbols(listing []models.SymbolInfo, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[normalizeSymbol(e)] = struct{}{}
	}

	candidates := make([]string, 0, len(listing))
	for _, s := range listing {
		if !s.Tradable || strings.TrimSpace(s.Symbol) == "" {
			continue
		}
		if _, ok := skip[normalizeSymbol(s.Symbol)]; ok {
			continue
		}
		candidates = append(candidates, s.Symbol)
	}
	sort.Strings(candidates)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, sym := range candidates {
		key := normalizeSymbol(sym)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func normalizeSymbol(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SymbolSourceConfig controls how a symbol list is produced per exchange.
type SymbolSourceConfig struct {
	Exclude    []string
	Override   []string // when set, used instead of the listing
	MaxSymbols int      // 0 means all
	CacheTTL   time.Duration
}

// SymbolSource resolves the symbols to collect for an exchange. Listings
// are cached as JSON so restarts within the TTL skip the listing call.
type SymbolSource struct {
	cfg   SymbolSourceConfig
	cache cache.BytesCache
	log   *logger.Logger
}

func NewSymbolSource(cfg SymbolSourceConfig, c cache.BytesCache, log *logger.Logger) *SymbolSource {
	if log == nil {
		log = logger.Nop()
	}
	return &SymbolSource{cfg: cfg, cache: c, log: log}
}

func listingKey(exchange string) string { return "symbols:" + exchange }

// Listing returns the raw listing, from cache when fresh.
func (s *SymbolSource) Listing(ctx context.Context, adapter drepo.ExchangeAdapter) ([]models.SymbolInfo, error) {
	key := listingKey(adapter.Name())
	if s.cache != nil {
		b, ok, err := s.cache.GetBytes(ctx, key)
		if err != nil {
			s.log.Warn("symbol cache read failed", logger.String("exchange", adapter.Name()), logger.Error(err))
		} else if ok {
			var listing []models.SymbolInfo
			if err := json.Unmarshal(b, &listing); err == nil {
				return listing, nil
			}
		}
	}

	listing, err := adapter.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s symbols: %w", adapter.Name(), err)
	}
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if b, err := json.Marshal(listing); err == nil {
			if err := s.cache.SetBytes(ctx, key, b, s.cfg.CacheTTL); err != nil {
				s.log.Warn("symbol cache write failed", logger.String("exchange", adapter.Name()), logger.Error(err))
			}
		}
	}
	return listing, nil
}

// Symbols returns the ordered symbol set for one exchange.
func (s *SymbolSource) Symbols(ctx context.Context, adapter drepo.ExchangeAdapter) ([]string, error) {
	var symbols []string
	if len(s.cfg.Override) > 0 {
		listing := make([]models.SymbolInfo, 0, len(s.cfg.Override))
		for _, sym := range s.cfg.Override {
			listing = append(listing, models.SymbolInfo{Exchange: adapter.Name(), Symbol: sym, Tradable: true})
		}
		symbols = SelectSymbols(listing, s.cfg.Exclude)
	} else {
		listing, err := s.Listing(ctx, adapter)
		if err != nil {
			return nil, err
		}
		symbols = SelectSymbols(listing, s.cfg.Exclude)
	}
	if s.cfg.MaxSymbols > 0 && len(symbols) > s.cfg.MaxSymbols {
		symbols = symbols[:s.cfg.MaxSymbols]
	}
	return symbols, nil
}

// Resolve builds symbolsPerExchange for the orchestrator. An exchange whose
// listing fails is logged and left out.
func (s *SymbolSource) Resolve(ctx context.Context, adapters map[string]drepo.ExchangeAdapter, exchanges []string) map[string][]string {
	out := make(map[string][]string, len(exchanges))
	for _, ex := range exchanges {
		a, ok := adapters[ex]
		if !ok {
			s.log.Error("no adapter for exchange", logger.String("exchange", ex))
			continue
		}
		syms, err := s.Symbols(ctx, a)
		if err != nil {
			s.log.Error("symbol listing failed", logger.String("exchange", ex), logger.Error(err))
			continue
		}
		s.log.Info("symbols selected", logger.String("exchange", ex), logger.Int("count", len(syms)))
		out[ex] = syms
	}
	return out
}
