package exchange

import (
	"sync"

	"CoinPull/internal/domain/models"
)

// CandleFinalizer turns a feed of in-progress candle updates into closed
// candles. A candle is emitted once an update with a later open time arrives;
// updates for the open candle replace it and older ones are dropped.
type CandleFinalizer struct {
	mu      sync.Mutex
	pending *models.Candle
	emit    func(models.Candle)
}

func NewCandleFinalizer(emit func(models.Candle)) *CandleFinalizer {
	return &CandleFinalizer{emit: emit}
}

func (f *CandleFinalizer) Push(c models.Candle) {
	f.mu.Lock()
	var closed *models.Candle
	switch {
	case f.pending == nil:
		f.pending = &c
	case c.OpenTime.After(f.pending.OpenTime):
		closed = f.pending
		f.pending = &c
	case c.OpenTime.Equal(f.pending.OpenTime):
		f.pending = &c
	}
	f.mu.Unlock()

	if closed != nil {
		f.emit(*closed)
	}
}
