package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/matchcore/internal/models"
)

func px(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// row renders a participant the way the report prints it
type row struct {
	ID      uint32
	Live    int
	Filled  int
	Balance string
}

func rows(ps []models.Participant) []row {
	out := make([]row, len(ps))
	for i, p := range ps {
		out[i] = row{p.ID, p.LiveOrders, p.FilledOrders, p.Balance.String()}
	}
	return out
}

func TestExchange_OnNewOrder(t *testing.T) {
	tests := []struct {
		name        string
		resting     models.NewOrder
		incoming    models.NewOrder
		expect      Outcome
		takerAmount string
	}{
		{
			name:     "NoCounterparty",
			resting:  models.NewOrder{Owner: 1, Symbol: "BEAN", Side: models.Buy, Price: px("10")},
			incoming: models.NewOrder{Owner: 2, Symbol: "CARB", Side: models.Sell, Price: px("9")},
			expect:   Rested,
		},
		{
			name:     "SameSideOnly",
			resting:  models.NewOrder{Owner: 1, Symbol: "BEAN", Side: models.Buy, Price: px("10")},
			incoming: models.NewOrder{Owner: 2, Symbol: "BEAN", Side: models.Buy, Price: px("11")},
			expect:   Rested,
		},
		{
			name:     "SellAboveBuyDoesNotCross",
			resting:  models.NewOrder{Owner: 1738, Symbol: "APPL", Side: models.Buy, Price: px("1500.50")},
			incoming: models.NewOrder{Owner: 2001, Symbol: "APPL", Side: models.Sell, Price: px("1500.51")},
			expect:   Rested,
		},
		{
			name:     "BuyBelowSellDoesNotCross",
			resting:  models.NewOrder{Owner: 2023, Symbol: "NTFLX", Side: models.Sell, Price: px("15")},
			incoming: models.NewOrder{Owner: 1000, Symbol: "NTFLX", Side: models.Buy, Price: px("10")},
			expect:   Rested,
		},
		{
			name:        "IncomingSellCrosses",
			resting:     models.NewOrder{Owner: 1738, Symbol: "APPL", Side: models.Buy, Price: px("1500.50")},
			incoming:    models.NewOrder{Owner: 2022, Symbol: "APPL", Side: models.Sell, Price: px("1500.49")},
			expect:      Matched,
			takerAmount: "1500.49",
		},
		{
			name:        "IncomingBuyCrosses",
			resting:     models.NewOrder{Owner: 1738, Symbol: "CME", Side: models.Sell, Price: px("500.50")},
			incoming:    models.NewOrder{Owner: 2023, Symbol: "CME", Side: models.Buy, Price: px("500.51")},
			expect:      Matched,
			takerAmount: "-500.51",
		},
		{
			name:        "EqualPricesCrossIncomingSell",
			resting:     models.NewOrder{Owner: 1, Symbol: "X", Side: models.Buy, Price: px("10")},
			incoming:    models.NewOrder{Owner: 2, Symbol: "X", Side: models.Sell, Price: px("10")},
			expect:      Matched,
			takerAmount: "10",
		},
		{
			name:        "EqualPricesCrossIncomingBuy",
			resting:     models.NewOrder{Owner: 1, Symbol: "X", Side: models.Sell, Price: px("10")},
			incoming:    models.NewOrder{Owner: 2, Symbol: "X", Side: models.Buy, Price: px("10")},
			expect:      Matched,
			takerAmount: "-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewExchange()
			require.Equal(t, Rested, ex.Apply(tt.resting).Outcome)

			res := ex.Apply(tt.incoming)
			assert.Equal(t, tt.expect, res.Outcome)

			taker, _ := ex.Participant(tt.incoming.Owner)
			maker, _ := ex.Participant(tt.resting.Owner)

			if tt.expect == Rested {
				assert.Nil(t, res.Trade)
				assert.Equal(t, 2, ex.RestingCount())
				assert.Equal(t, 1, taker.LiveOrders)
				assert.Equal(t, 1, maker.LiveOrders)
				return
			}

			require.NotNil(t, res.Trade)
			assert.Equal(t, tt.takerAmount, res.Trade.Amount.String())
			assert.Equal(t, tt.incoming.Owner, res.Trade.Taker)
			assert.Equal(t, tt.resting.Owner, res.Trade.Maker)
			assert.True(t, res.Trade.Price.Equal(tt.incoming.Price), "trade executes at the incoming price")
			assert.Zero(t, ex.RestingCount(), "a match leaves nothing resting")

			assert.Equal(t, tt.takerAmount, taker.Balance.String())
			assert.True(t, taker.Balance.Add(maker.Balance).IsZero())
			assert.Equal(t, 1, taker.FilledOrders)
			assert.Equal(t, 1, maker.FilledOrders)
			assert.Zero(t, taker.LiveOrders)
			assert.Zero(t, maker.LiveOrders)
		})
	}
}

func TestExchange_DuplicateNewIgnored(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1001, "BEAN", models.Buy, px("9.99"))

	before := ex.Snapshot()
	beforeBook := ex.Orders()

	res := ex.OnNewOrder(1001, "BEAN", models.Sell, px("1"))
	assert.Equal(t, Ignored, res.Outcome)
	assert.Equal(t, before, ex.Snapshot())
	assert.Equal(t, beforeBook, ex.Orders())
}

func TestExchange_FirstFoundNotBestPrice(t *testing.T) {
	ex := NewExchange()
	// owner 20 iterates ahead of owner 10
	ex.OnNewOrder(10, "ABC", models.Sell, px("90"))
	ex.OnNewOrder(20, "ABC", models.Sell, px("110"))

	// owner 10 would cross, but owner 20 is the only candidate and does not
	res := ex.OnNewOrder(5, "ABC", models.Buy, px("95"))
	assert.Equal(t, Rested, res.Outcome)
	assert.Equal(t, 3, ex.RestingCount())
}

func TestExchange_OnCancel(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1000, "BEAN", models.Buy, px("10"))
	ex.OnNewOrder(1001, "BEAN", models.Buy, px("9.99"))

	tests := []struct {
		name   string
		owner  uint32
		symbol string
		expect Outcome
	}{
		{name: "Existing", owner: 1001, symbol: "BEAN", expect: Canceled},
		{name: "AlreadyCanceled", owner: 1001, symbol: "BEAN", expect: Ignored},
		{name: "UnknownSymbol", owner: 1000, symbol: "CARB", expect: Ignored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ex.OnCancel(tt.owner, tt.symbol)
			assert.Equal(t, tt.expect, res.Outcome)
			_, found := ex.book.Find(tt.owner, tt.symbol)
			assert.False(t, found)
		})
	}

	p, _ := ex.Participant(1001)
	assert.Zero(t, p.LiveOrders)
	p, _ = ex.Participant(1000)
	assert.Equal(t, 1, p.LiveOrders)
}

func TestExchange_NoOpDoesNotCreateParticipant(t *testing.T) {
	ex := NewExchange()
	ex.OnCancel(7, "APPL")
	ex.OnModify(8, "APPL", px("1"))
	assert.Empty(t, ex.Snapshot())
}

func TestExchange_InvalidSideIgnored(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1, "APPL", models.Buy, px("100"))

	res := ex.Apply(models.NewOrder{Owner: 2, Symbol: "APPL", Price: px("99")})
	assert.Equal(t, Ignored, res.Outcome)
	assert.Nil(t, res.Trade)
	assert.Equal(t, 1, ex.RestingCount())
	_, found := ex.Participant(2)
	assert.False(t, found)
}

func TestExchange_ApplyPointerEvents(t *testing.T) {
	ex := NewExchange()

	tests := []struct {
		name    string
		event   models.Event
		outcome Outcome
	}{
		{name: "New", event: &models.NewOrder{Owner: 1, Symbol: "APPL", Side: models.Buy, Price: px("100")}, outcome: Rested},
		{name: "Modify", event: &models.Modify{Owner: 1, Symbol: "APPL", Price: px("101")}, outcome: Rested},
		{name: "Cancel", event: &models.Cancel{Owner: 1, Symbol: "APPL"}, outcome: Canceled},
		{name: "NilPointer", event: (*models.Cancel)(nil), outcome: Ignored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, ex.Apply(tt.event).Outcome)
		})
	}
	assert.Equal(t, 0, ex.RestingCount())
}

func TestExchange_CancelAfterMatchIsNoOp(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1, "APPL", models.Buy, px("100"))
	require.Equal(t, Matched, ex.OnNewOrder(2, "APPL", models.Sell, px("99")).Outcome)

	before := ex.Snapshot()
	assert.Equal(t, Ignored, ex.OnCancel(1, "APPL").Outcome)
	assert.Equal(t, Ignored, ex.OnCancel(2, "APPL").Outcome)
	assert.Equal(t, before, ex.Snapshot())
}

func TestExchange_ModifyThenMatch(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1738, "APPL", models.Buy, px("1500.50"))
	require.Equal(t, Rested, ex.OnNewOrder(2001, "APPL", models.Sell, px("1500.51")).Outcome)
	require.Equal(t, 2, ex.RestingCount())

	res := ex.OnModify(2001, "APPL", px("1500.48"))
	require.Equal(t, Matched, res.Outcome)
	assert.Equal(t, models.Sell, res.Trade.TakerSide)

	assert.Equal(t, []row{
		{1738, 0, 1, "-1500.48"},
		{2001, 0, 1, "1500.48"},
	}, rows(ex.Snapshot()))
	assert.Zero(t, ex.RestingCount())
}

func TestExchange_ModifyEquivalentToCancelNew(t *testing.T) {
	setup := func() *Exchange {
		ex := NewExchange(WithClock(func() time.Time { return time.Unix(0, 0) }))
		ex.OnNewOrder(1, "NTFLX", models.Buy, px("10"))
		ex.OnNewOrder(2, "NTFLX", models.Sell, px("15"))
		ex.OnNewOrder(3, "NTFLX", models.Sell, px("12"))
		return ex
	}

	modified := setup()
	modRes := modified.OnModify(2, "NTFLX", px("10"))

	replaced := setup()
	replaced.OnCancel(2, "NTFLX")
	newRes := replaced.OnNewOrder(2, "NTFLX", models.Sell, px("10"))

	assert.Equal(t, newRes.Outcome, modRes.Outcome)
	assert.Equal(t, replaced.Snapshot(), modified.Snapshot())
	assert.Equal(t, replaced.Orders(), modified.Orders())
}

func TestExchange_ModifyKeepsSide(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(4, "VIRT", models.Buy, px("100.35"))

	res := ex.OnModify(4, "VIRT", px("101"))
	assert.Equal(t, Rested, res.Outcome)

	o, ok := ex.book.Find(4, "VIRT")
	require.True(t, ok)
	assert.Equal(t, models.Buy, o.Side)
	assert.Equal(t, "101", o.Price.String())

	p, _ := ex.Participant(4)
	assert.Equal(t, 1, p.LiveOrders)
}

func TestExchange_SelfMatchImpossible(t *testing.T) {
	ex := NewExchange()
	ex.OnNewOrder(1, "APPL", models.Buy, px("100"))

	res := ex.OnNewOrder(1, "APPL", models.Sell, px("90"))
	assert.Equal(t, Ignored, res.Outcome)

	p, _ := ex.Participant(1)
	assert.Equal(t, 1, p.LiveOrders)
	assert.Zero(t, p.FilledOrders)
	assert.True(t, p.Balance.IsZero())
	assert.Equal(t, 1, ex.RestingCount())
}

func TestExchange_HarnessStream(t *testing.T) {
	stream := []models.Event{
		models.NewOrder{Owner: 1738, Symbol: "APPL", Side: models.Buy, Price: px("1500.50")},
		models.NewOrder{Owner: 1738, Symbol: "CME", Side: models.Sell, Price: px("500.50")},
		models.NewOrder{Owner: 2001, Symbol: "APPL", Side: models.Sell, Price: px("1500.51")},
		models.NewOrder{Owner: 1738, Symbol: "VIRT", Side: models.Buy, Price: px("100.35")},
		models.NewOrder{Owner: 2022, Symbol: "APPL", Side: models.Sell, Price: px("1500.49")},
		models.Modify{Owner: 2001, Symbol: "APPL", Price: px("1500.48")},
		models.Cancel{Owner: 2001, Symbol: "APPL"},
		models.Cancel{Owner: 2001, Symbol: "CME"},
		models.NewOrder{Owner: 2023, Symbol: "NTFLX", Side: models.Sell, Price: px("15.00")},
		models.NewOrder{Owner: 1000, Symbol: "NTFLX", Side: models.Buy, Price: px("10.00")},
		models.Modify{Owner: 2023, Symbol: "NTFLX", Price: px("10.00")},
		models.NewOrder{Owner: 2023, Symbol: "CME", Side: models.Buy, Price: px("500.51")},
	}
	outcomes := []Outcome{
		Rested, Rested, Rested, Rested, Matched, Rested,
		Canceled, Ignored, Rested, Rested, Matched, Matched,
	}

	ex := NewExchange()
	for i, ev := range stream {
		assert.Equal(t, outcomes[i], ex.Apply(ev).Outcome, "event %d: %v", i+1, ev)
	}

	assert.Equal(t, []row{
		{1000, 0, 1, "-10"},
		{1738, 1, 2, "-999.98"},
		{2001, 0, 0, "0"},
		{2022, 0, 1, "1500.49"},
		{2023, 0, 2, "-490.51"},
	}, rows(ex.Snapshot()))

	orders := ex.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "VIRT", orders[0].Symbol)
}
