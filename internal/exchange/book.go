package exchange

import (
	"sort"

	"github.com/xtrntr/matchcore/internal/models"
)

type orderKey struct {
	owner  uint32
	symbol string
}

// Book is the set of resting orders across all symbols, at most one per
// (owner, symbol). Iteration runs by owner descending, then symbol
// descending. It is not price sorted.
type Book struct {
	orders []*models.Order
	index  map[orderKey]*models.Order
}

// NewBook creates an empty book
func NewBook() *Book {
	return &Book{index: make(map[orderKey]*models.Order)}
}

// before reports whether a iterates ahead of b
func before(a, b orderKey) bool {
	if a.owner != b.owner {
		return a.owner > b.owner
	}
	return a.symbol > b.symbol
}

func (b *Book) position(k orderKey) int {
	return sort.Search(len(b.orders), func(i int) bool {
		o := b.orders[i]
		return !before(orderKey{o.Owner, o.Symbol}, k)
	})
}

// Find returns the resting order for (owner, symbol)
func (b *Book) Find(owner uint32, symbol string) (*models.Order, bool) {
	o, ok := b.index[orderKey{owner, symbol}]
	return o, ok
}

// Insert adds an order. It returns false and leaves the book untouched if
// (owner, symbol) already rests.
func (b *Book) Insert(o models.Order) bool {
	k := orderKey{o.Owner, o.Symbol}
	if _, exists := b.index[k]; exists {
		return false
	}
	cp := o
	i := b.position(k)
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = &cp
	b.index[k] = &cp
	return true
}

// Remove deletes the order for (owner, symbol) and returns it
func (b *Book) Remove(owner uint32, symbol string) (models.Order, bool) {
	k := orderKey{owner, symbol}
	o, ok := b.index[k]
	if !ok {
		return models.Order{}, false
	}
	i := b.position(k)
	b.orders = append(b.orders[:i], b.orders[i+1:]...)
	delete(b.index, k)
	return *o, true
}

// FirstCounterparty scans in book order for the first order on symbol whose
// side differs from side. Only that one order is ever a candidate; price
// plays no part in the selection.
func (b *Book) FirstCounterparty(symbol string, side models.Side) (*models.Order, bool) {
	for _, o := range b.orders {
		if o.Symbol == symbol && o.Side != side {
			return o, true
		}
	}
	return nil, false
}

// Orders returns copies of the resting orders in iteration order
func (b *Book) Orders() []models.Order {
	out := make([]models.Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}

// CountByOwner returns how many orders owner has resting
func (b *Book) CountByOwner(owner uint32) int {
	n := 0
	for _, o := range b.orders {
		if o.Owner == owner {
			n++
		}
	}
	return n
}

// Len returns the number of resting orders
func (b *Book) Len() int {
	return len(b.orders)
}
