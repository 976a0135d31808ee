package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/matchcore/internal/models"
)

// Ledger keeps per-participant counters. It never decides matching;
// the matching core is its only writer.
type Ledger struct {
	participants map[uint32]*models.Participant
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{participants: make(map[uint32]*models.Participant)}
}

// Ensure returns the participant for id, creating a zeroed one on first reference.
func (l *Ledger) Ensure(id uint32) *models.Participant {
	p, ok := l.participants[id]
	if !ok {
		p = &models.Participant{ID: id, Balance: decimal.Zero}
		l.participants[id] = p
	}
	return p
}

// Get returns a copy of the participant and whether it exists
func (l *Ledger) Get(id uint32) (models.Participant, bool) {
	p, ok := l.participants[id]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// RecordNewOrder counts a newly accepted order
func (l *Ledger) RecordNewOrder(id uint32) {
	l.Ensure(id).LiveOrders++
}

// RecordCancel releases a live order. Callers must only cancel orders
// they know to be live; a zero counter here is a bug in the caller.
func (l *Ledger) RecordCancel(id uint32) {
	p := l.Ensure(id)
	if p.LiveOrders == 0 {
		panic(fmt.Sprintf("ledger: cancel for participant %d with no live orders", id))
	}
	p.LiveOrders--
}

// RecordFill books a match: the signed amount is added to the balance and
// the order moves from live to filled.
func (l *Ledger) RecordFill(id uint32, amount decimal.Decimal) {
	p := l.Ensure(id)
	if p.LiveOrders == 0 {
		panic(fmt.Sprintf("ledger: fill for participant %d with no live orders", id))
	}
	p.Balance = p.Balance.Add(amount)
	p.FilledOrders++
	p.LiveOrders--
}

// Snapshot returns every participant ordered by ascending id
func (l *Ledger) Snapshot() []models.Participant {
	out := make([]models.Participant, 0, len(l.participants))
	for _, p := range l.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of known participants
func (l *Ledger) Len() int {
	return len(l.participants)
}
