package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/ledger"
	"github.com/xtrntr/matchcore/internal/models"
)

// Outcome describes the transition an event caused
type Outcome int

const (
	// Ignored means the event changed nothing: duplicate New, or
	// Modify/Cancel with no resting order.
	Ignored Outcome = iota
	Rested
	Matched
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Rested:
		return "rested"
	case Matched:
		return "matched"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Result is what a handler did. Trade is set only when Outcome is Matched.
type Result struct {
	Outcome Outcome
	Trade   *models.Trade
}

// Exchange owns the order book and the participant ledger and applies one
// event at a time. It is not safe for concurrent use; Engine serializes
// access when callers are concurrent.
type Exchange struct {
	book   *Book
	ledger *ledger.Ledger
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Exchange
type Option func(*Exchange)

// WithLogger sets the logger used for transition tracing
func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) { e.logger = l }
}

// WithClock overrides the trade timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// NewExchange creates an exchange with an empty book and ledger
func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		book:   NewBook(),
		ledger: ledger.NewLedger(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply dispatches an event to its handler
func (e *Exchange) Apply(ev models.Event) Result {
	switch ev := ev.(type) {
	case models.NewOrder:
		return e.OnNewOrder(ev.Owner, ev.Symbol, ev.Side, ev.Price)
	case models.Modify:
		return e.OnModify(ev.Owner, ev.Symbol, ev.Price)
	case models.Cancel:
		return e.OnCancel(ev.Owner, ev.Symbol)
	case *models.NewOrder:
		if ev != nil {
			return e.Apply(*ev)
		}
	case *models.Modify:
		if ev != nil {
			return e.Apply(*ev)
		}
	case *models.Cancel:
		if ev != nil {
			return e.Apply(*ev)
		}
	}
	e.logger.Warn("unsupported event ignored", zap.String("type", fmt.Sprintf("%T", ev)))
	return Result{Outcome: Ignored}
}

// OnNewOrder accepts a new order for (owner, symbol) and either rests it
// or matches it against the first opposite-side order on the symbol.
func (e *Exchange) OnNewOrder(owner uint32, symbol string, side models.Side, price decimal.Decimal) Result {
	if !side.Valid() {
		e.logger.Warn("order with invalid side ignored",
			zap.Uint32("owner", owner), zap.String("symbol", symbol), zap.Stringer("side", side))
		return Result{Outcome: Ignored}
	}
	if _, exists := e.book.Find(owner, symbol); exists {
		e.logger.Debug("duplicate order ignored",
			zap.Uint32("owner", owner), zap.String("symbol", symbol))
		return Result{Outcome: Ignored}
	}
	e.ledger.RecordNewOrder(owner)

	incoming := models.Order{Owner: owner, Symbol: symbol, Side: side, Price: price}

	candidate, found := e.book.FirstCounterparty(symbol, side)
	if !found {
		return e.rest(incoming)
	}

	flip := side.Flip()
	if candidate.Price.Mul(flip).LessThan(price.Mul(flip)) {
		return e.rest(incoming)
	}

	maker, _ := e.book.Remove(candidate.Owner, candidate.Symbol)
	amount := price.Mul(flip)
	e.ledger.RecordFill(owner, amount)
	e.ledger.RecordFill(maker.Owner, amount.Neg())

	trade := &models.Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Taker:      owner,
		Maker:      maker.Owner,
		TakerSide:  side,
		Price:      price,
		Amount:     amount,
		ExecutedAt: e.now(),
	}
	e.logger.Debug("orders matched",
		zap.String("symbol", symbol),
		zap.Uint32("taker", owner),
		zap.Uint32("maker", maker.Owner),
		zap.Stringer("price", price),
		zap.Stringer("amount", amount),
	)
	return Result{Outcome: Matched, Trade: trade}
}

func (e *Exchange) rest(o models.Order) Result {
	e.book.Insert(o)
	e.logger.Debug("order resting",
		zap.Uint32("owner", o.Owner),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", o.Side),
		zap.Stringer("price", o.Price),
	)
	return Result{Outcome: Rested}
}

// OnModify cancels the resting order for (owner, symbol) and resubmits it
// at price with its original side. The resubmission matches like any new order.
func (e *Exchange) OnModify(owner uint32, symbol string, price decimal.Decimal) Result {
	old, ok := e.book.Remove(owner, symbol)
	if !ok {
		return Result{Outcome: Ignored}
	}
	e.ledger.RecordCancel(owner)
	return e.OnNewOrder(owner, symbol, old.Side, price)
}

// OnCancel removes the resting order for (owner, symbol), if any
func (e *Exchange) OnCancel(owner uint32, symbol string) Result {
	if _, ok := e.book.Remove(owner, symbol); !ok {
		return Result{Outcome: Ignored}
	}
	e.ledger.RecordCancel(owner)
	e.logger.Debug("order canceled",
		zap.Uint32("owner", owner), zap.String("symbol", symbol))
	return Result{Outcome: Canceled}
}

// Snapshot returns participant counters in ascending id order
func (e *Exchange) Snapshot() []models.Participant {
	return e.ledger.Snapshot()
}

// Participant returns one participant's counters
func (e *Exchange) Participant(id uint32) (models.Participant, bool) {
	return e.ledger.Get(id)
}

// Orders returns the resting orders in book iteration order
func (e *Exchange) Orders() []models.Order {
	return e.book.Orders()
}

// RestingCount returns the number of resting orders
func (e *Exchange) RestingCount() int {
	return e.book.Len()
}
