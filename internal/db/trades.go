package db

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/models"
)

// TradeStore persists executed trades
type TradeStore interface {
	SaveTrade(ctx context.Context, t models.Trade) error
}

// TradeWriter persists trades off the matching goroutine. Enqueue never
// blocks; when the buffer is full the trade is dropped and logged.
type TradeWriter struct {
	store  TradeStore
	logger *zap.Logger
	ch     chan models.Trade
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewTradeWriter starts a writer with the given buffer size
func NewTradeWriter(store TradeStore, logger *zap.Logger, buffer int) *TradeWriter {
	w := &TradeWriter{
		store:  store,
		logger: logger,
		ch:     make(chan models.Trade, buffer),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *TradeWriter) run() {
	defer w.wg.Done()
	for t := range w.ch {
		if err := w.store.SaveTrade(context.Background(), t); err != nil {
			w.logger.Error("failed to persist trade", zap.Stringer("trade_id", t.ID), zap.Error(err))
		}
	}
}

// Enqueue schedules t for persistence. Trades enqueued after Close are dropped.
func (w *TradeWriter) Enqueue(t models.Trade) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("trade writer closed, dropping trade", zap.Stringer("trade_id", t.ID))
		return
	}
	select {
	case w.ch <- t:
	default:
		w.logger.Warn("trade buffer full, dropping trade", zap.Stringer("trade_id", t.ID))
	}
}

// Close flushes queued trades and stops the writer
func (w *TradeWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
