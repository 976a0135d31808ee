package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Event is one instruction from the event stream: NewOrder, Modify or Cancel.
type Event interface {
	isEvent()
	Kind() string
}

// NewOrder submits an order for (Owner, Symbol).
type NewOrder struct {
	Owner  uint32
	Symbol string
	Side   Side
	Price  decimal.Decimal
}

// Modify replaces the price of a resting order, keeping its side.
type Modify struct {
	Owner  uint32
	Symbol string
	Price  decimal.Decimal
}

// Cancel removes a resting order.
type Cancel struct {
	Owner  uint32
	Symbol string
}

func (NewOrder) isEvent() {}
func (Modify) isEvent()   {}
func (Cancel) isEvent()   {}

func (NewOrder) Kind() string { return "new" }
func (Modify) Kind() string   { return "modify" }
func (Cancel) Kind() string   { return "cancel" }

func (e NewOrder) String() string {
	return fmt.Sprintf("N %d %s %c %s", e.Owner, e.Symbol, byte(e.Side), e.Price)
}

func (e Modify) String() string {
	return fmt.Sprintf("M %d %s %s", e.Owner, e.Symbol, e.Price)
}

func (e Cancel) String() string {
	return fmt.Sprintf("C %d %s", e.Owner, e.Symbol)
}
