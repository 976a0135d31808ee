package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side byte

const (
	Buy  Side = 'B'
	Sell Side = 'S'
)

// ParseSide accepts "B"/"S" and "buy"/"sell"
func ParseSide(s string) (Side, error) {
	switch s {
	case "B", "b", "buy", "BUY":
		return Buy, nil
	case "S", "s", "sell", "SELL":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Flip orients prices so one inequality decides crossing for both sides:
// -1 for Buy, +1 for Sell.
func (s Side) Flip() decimal.Decimal {
	if s == Buy {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("Side(%d)", byte(s))
}

// Valid reports whether s is Buy or Sell
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// Order is a resting instruction. (Owner, Symbol) identifies it.
type Order struct {
	Owner  uint32          `json:"owner"`
	Symbol string          `json:"symbol"`
	Side   Side            `json:"side"`
	Price  decimal.Decimal `json:"price"`
}

// Participant holds one firm's counters
type Participant struct {
	ID           uint32          `json:"id"`
	LiveOrders   int             `json:"live_orders"`
	FilledOrders int             `json:"filled_orders"`
	Balance      decimal.Decimal `json:"balance"`
}

// Trade represents an executed match. Amount is the taker's balance delta;
// the maker receives -Amount.
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	Symbol     string          `json:"symbol"`
	Taker      uint32          `json:"taker"`
	Maker      uint32          `json:"maker"`
	TakerSide  Side            `json:"taker_side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Operator is an account allowed to read the reporting API
type Operator struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
