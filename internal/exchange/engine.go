package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/models"
)

// ErrStopped is returned by Engine calls made after Stop
var ErrStopped = errors.New("engine stopped")

// ErrInvalidEvent is returned by Submit for events the core cannot apply
var ErrInvalidEvent = errors.New("invalid event")

func validate(ev models.Event) error {
	switch ev := ev.(type) {
	case models.NewOrder:
		if !ev.Side.Valid() {
			return fmt.Errorf("%w: %s has side %s", ErrInvalidEvent, ev.Symbol, ev.Side)
		}
		return nil
	case *models.NewOrder:
		if ev == nil {
			return fmt.Errorf("%w: nil event", ErrInvalidEvent)
		}
		return validate(*ev)
	case models.Modify, models.Cancel:
		return nil
	case *models.Modify:
		if ev == nil {
			return fmt.Errorf("%w: nil event", ErrInvalidEvent)
		}
		return nil
	case *models.Cancel:
		if ev == nil {
			return fmt.Errorf("%w: nil event", ErrInvalidEvent)
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, ev)
}

// EventSource yields events in order and returns io.EOF when exhausted
type EventSource interface {
	Next(ctx context.Context) (models.Event, error)
}

// Recorder observes applied events
type Recorder interface {
	ObserveEvent(kind, outcome string)
	ObserveTrade(symbol string)
	SetResting(n int)
	SetParticipants(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEvent(string, string) {}
func (nopRecorder) ObserveTrade(string)         {}
func (nopRecorder) SetResting(int)              {}
func (nopRecorder) SetParticipants(int)         {}

type requestType int

const (
	requestSubmit requestType = iota
	requestSnapshot
	requestParticipant
	requestOrders
	requestTrades
)

type request struct {
	typ   requestType
	event models.Event
	id    uint32
	resp  chan response
}

type response struct {
	result       Result
	participants []models.Participant
	found        bool
	orders       []models.Order
	trades       []models.Trade
}

// EngineConfig tunes the matching loop
type EngineConfig struct {
	QueueSize    int
	RecentTrades int
}

// Engine feeds one Exchange from a single goroutine so events submitted
// from many callers are still applied strictly one at a time, in the
// order they reach the queue.
type Engine struct {
	ex       *Exchange
	cfg      EngineConfig
	logger   *zap.Logger
	recorder Recorder
	handlers []func(models.Trade)

	reqCh    chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	recent []models.Trade
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithTradeHandler registers a callback run on the loop goroutine for each trade
func WithTradeHandler(h func(models.Trade)) EngineOption {
	return func(e *Engine) { e.handlers = append(e.handlers, h) }
}

// NewEngine starts the matching loop for ex
func NewEngine(ex *Exchange, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	e := &Engine{
		ex:       ex,
		cfg:      cfg,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		reqCh:    make(chan request, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.reqCh:
			req.resp <- e.handle(req)
		}
	}
}

func (e *Engine) handle(req request) response {
	switch req.typ {
	case requestSubmit:
		res := e.ex.Apply(req.event)
		e.recorder.ObserveEvent(req.event.Kind(), res.Outcome.String())
		if res.Trade != nil {
			e.recordTrade(*res.Trade)
		}
		e.recorder.SetResting(e.ex.RestingCount())
		e.recorder.SetParticipants(e.ex.ledger.Len())
		return response{result: res}
	case requestSnapshot:
		return response{participants: e.ex.Snapshot()}
	case requestParticipant:
		p, ok := e.ex.Participant(req.id)
		return response{participants: []models.Participant{p}, found: ok}
	case requestOrders:
		return response{orders: e.ex.Orders()}
	case requestTrades:
		out := make([]models.Trade, len(e.recent))
		copy(out, e.recent)
		return response{trades: out}
	}
	return response{}
}

func (e *Engine) recordTrade(t models.Trade) {
	e.logger.Info("trade executed",
		zap.Stringer("trade_id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.Uint32("taker", t.Taker),
		zap.Uint32("maker", t.Maker),
		zap.Stringer("amount", t.Amount),
	)
	e.recorder.ObserveTrade(t.Symbol)
	if e.cfg.RecentTrades > 0 {
		e.recent = append(e.recent, t)
		if over := len(e.recent) - e.cfg.RecentTrades; over > 0 {
			e.recent = append(e.recent[:0], e.recent[over:]...)
		}
	}
	for _, h := range e.handlers {
		h(t)
	}
}

func (e *Engine) do(ctx context.Context, req request) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}
	select {
	case <-e.stopCh:
		return response{}, ErrStopped
	default:
	}

	req.resp = make(chan response, 1)
	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-e.stopCh:
		return response{}, ErrStopped
	case e.reqCh <- req:
	}
	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-e.doneCh:
		// the loop may have answered just before stopping
		select {
		case resp := <-req.resp:
			return resp, nil
		default:
			return response{}, ErrStopped
		}
	case resp := <-req.resp:
		return resp, nil
	}
}

// Submit applies one event and returns its result
func (e *Engine) Submit(ctx context.Context, ev models.Event) (Result, error) {
	if err := validate(ev); err != nil {
		return Result{}, err
	}
	resp, err := e.do(ctx, request{typ: requestSubmit, event: ev})
	if err != nil {
		return Result{}, err
	}
	return resp.result, nil
}

// Replay drains src into the engine and returns the number of events applied
func (e *Engine) Replay(ctx context.Context, src EventSource) (int, error) {
	n := 0
	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to read event %d: %w", n+1, err)
		}
		if _, err := e.Submit(ctx, ev); err != nil {
			return n, fmt.Errorf("failed to apply event %d: %w", n+1, err)
		}
		n++
	}
}

// Snapshot returns participant counters in ascending id order
func (e *Engine) Snapshot(ctx context.Context) ([]models.Participant, error) {
	resp, err := e.do(ctx, request{typ: requestSnapshot})
	if err != nil {
		return nil, err
	}
	return resp.participants, nil
}

// Participant returns one participant's counters
func (e *Engine) Participant(ctx context.Context, id uint32) (models.Participant, bool, error) {
	resp, err := e.do(ctx, request{typ: requestParticipant, id: id})
	if err != nil {
		return models.Participant{}, false, err
	}
	return resp.participants[0], resp.found, nil
}

// Orders returns the resting orders in book iteration order
func (e *Engine) Orders(ctx context.Context) ([]models.Order, error) {
	resp, err := e.do(ctx, request{typ: requestOrders})
	if err != nil {
		return nil, err
	}
	return resp.orders, nil
}

// RecentTrades returns the most recent trades, oldest first
func (e *Engine) RecentTrades(ctx context.Context) ([]models.Trade, error) {
	resp, err := e.do(ctx, request{typ: requestTrades})
	if err != nil {
		return nil, err
	}
	return resp.trades, nil
}

// Stop ends the matching loop and waits for it to exit. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
}
