package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/xtrntr/matchcore/internal/models"
)

var (
	propOwners  = []uint32{1, 2, 3, 4}
	propSymbols = []string{"APPL", "CME", "NTFLX"}
)

func drawEvent(t *rapid.T, label string) models.Event {
	owner := rapid.SampledFrom(propOwners).Draw(t, label+".owner")
	symbol := rapid.SampledFrom(propSymbols).Draw(t, label+".symbol")
	price := decimal.New(rapid.Int64Range(90, 110).Draw(t, label+".price"), -1)

	switch rapid.IntRange(0, 3).Draw(t, label+".kind") {
	case 0, 1:
		side := rapid.SampledFrom([]models.Side{models.Buy, models.Sell}).Draw(t, label+".side")
		return models.NewOrder{Owner: owner, Symbol: symbol, Side: side, Price: price}
	case 2:
		return models.Modify{Owner: owner, Symbol: symbol, Price: price}
	default:
		return models.Cancel{Owner: owner, Symbol: symbol}
	}
}

func checkInvariants(t *rapid.T, ex *Exchange, trades int) {
	seen := make(map[orderKey]bool)
	for _, o := range ex.Orders() {
		k := orderKey{o.Owner, o.Symbol}
		if seen[k] {
			t.Fatalf("two resting orders for %d/%s", o.Owner, o.Symbol)
		}
		seen[k] = true
	}

	total := decimal.Zero
	filled := 0
	for _, p := range ex.Snapshot() {
		if got := ex.book.CountByOwner(p.ID); got != p.LiveOrders {
			t.Fatalf("participant %d: live=%d but %d resting", p.ID, p.LiveOrders, got)
		}
		total = total.Add(p.Balance)
		filled += p.FilledOrders
	}
	if !total.IsZero() {
		t.Fatalf("balances sum to %s, expected 0", total)
	}
	if filled != 2*trades {
		t.Fatalf("filled=%d after %d trades", filled, trades)
	}
}

func TestProperty_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ex := NewExchange()
		trades := 0
		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			ev := drawEvent(t, "ev")

			before := make(map[uint32]models.Participant)
			for _, p := range ex.Snapshot() {
				before[p.ID] = p
			}

			res := ex.Apply(ev)
			if res.Outcome == Matched {
				trades++
				tr := res.Trade
				if tr.Taker == tr.Maker {
					t.Fatalf("participant %d matched itself", tr.Taker)
				}
				taker, _ := ex.Participant(tr.Taker)
				maker, _ := ex.Participant(tr.Maker)
				if taker.FilledOrders != before[tr.Taker].FilledOrders+1 ||
					maker.FilledOrders != before[tr.Maker].FilledOrders+1 {
					t.Fatalf("match did not fill exactly one order on each side")
				}
				delta := taker.Balance.Sub(before[tr.Taker].Balance).
					Add(maker.Balance.Sub(before[tr.Maker].Balance))
				if !delta.IsZero() {
					t.Fatalf("match moved %s net, expected 0", delta)
				}
			}
			checkInvariants(t, ex, trades)
		}
	})
}

func TestProperty_DuplicateNewIsNoOp(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ex := NewExchange()
		for i, n := 0, rapid.IntRange(0, 20).Draw(t, "n"); i < n; i++ {
			ex.Apply(drawEvent(t, "ev"))
		}

		orders := ex.Orders()
		if len(orders) == 0 {
			return
		}
		o := rapid.SampledFrom(orders).Draw(t, "resting")
		side := rapid.SampledFrom([]models.Side{models.Buy, models.Sell}).Draw(t, "side")

		snap := ex.Snapshot()
		res := ex.OnNewOrder(o.Owner, o.Symbol, side, decimal.NewFromInt(1))
		if res.Outcome != Ignored {
			t.Fatalf("expected duplicate New to be ignored, got %s", res.Outcome)
		}
		after := ex.Snapshot()
		if len(after) != len(snap) {
			t.Fatalf("participants changed on duplicate New")
		}
		for i := range snap {
			if snap[i].LiveOrders != after[i].LiveOrders ||
				snap[i].FilledOrders != after[i].FilledOrders ||
				!snap[i].Balance.Equal(after[i].Balance) {
				t.Fatalf("participant %d changed on duplicate New", snap[i].ID)
			}
		}
		if len(ex.Orders()) != len(orders) {
			t.Fatalf("book changed on duplicate New")
		}
	})
}

func TestProperty_ModifyEqualsCancelThenNew(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := make([]models.Event, rapid.IntRange(0, 25).Draw(t, "n"))
		for i := range events {
			events[i] = drawEvent(t, "ev")
		}
		a, b := NewExchange(), NewExchange()
		for _, ev := range events {
			a.Apply(ev)
			b.Apply(ev)
		}

		orders := a.Orders()
		if len(orders) == 0 {
			return
		}
		o := rapid.SampledFrom(orders).Draw(t, "target")
		price := decimal.New(rapid.Int64Range(90, 110).Draw(t, "price"), -1)

		ra := a.OnModify(o.Owner, o.Symbol, price)
		b.OnCancel(o.Owner, o.Symbol)
		rb := b.OnNewOrder(o.Owner, o.Symbol, o.Side, price)

		if ra.Outcome != rb.Outcome {
			t.Fatalf("modify outcome %s, cancel+new outcome %s", ra.Outcome, rb.Outcome)
		}
		sa, sb := a.Snapshot(), b.Snapshot()
		if len(sa) != len(sb) {
			t.Fatalf("participant count differs")
		}
		for i := range sa {
			if sa[i].ID != sb[i].ID || sa[i].LiveOrders != sb[i].LiveOrders ||
				sa[i].FilledOrders != sb[i].FilledOrders || !sa[i].Balance.Equal(sb[i].Balance) {
				t.Fatalf("participant %d differs: %+v vs %+v", sa[i].ID, sa[i], sb[i])
			}
		}
		oa, ob := a.Orders(), b.Orders()
		if len(oa) != len(ob) {
			t.Fatalf("book sizes differ")
		}
		for i := range oa {
			if oa[i].Owner != ob[i].Owner || oa[i].Symbol != ob[i].Symbol ||
				oa[i].Side != ob[i].Side || !oa[i].Price.Equal(ob[i].Price) {
				t.Fatalf("books differ at %d", i)
			}
		}
	})
}
