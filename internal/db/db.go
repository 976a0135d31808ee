package db

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/matchcore/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err wraps a PostgreSQL unique_violation
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Migrate executes a schema script
func (db *DB) Migrate(ctx context.Context, script string) error {
	if _, err := db.Pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// InsertEvents appends events to the events table in one transaction,
// preserving their order in seq.
func (db *DB) InsertEvents(ctx context.Context, events []models.Event) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = "INSERT INTO events (kind, owner, symbol, side, price) VALUES ($1, $2, $3, $4, $5)"
	batch := &pgx.Batch{}
	for _, ev := range events {
		switch ev := ev.(type) {
		case models.NewOrder:
			batch.Queue(q, "N", int64(ev.Owner), ev.Symbol, string(rune(ev.Side)), ev.Price)
		case models.Modify:
			batch.Queue(q, "M", int64(ev.Owner), ev.Symbol, nil, ev.Price)
		case models.Cancel:
			batch.Queue(q, "C", int64(ev.Owner), ev.Symbol, nil, nil)
		default:
			return fmt.Errorf("unsupported event %T", ev)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EventSource pages through the events table in seq order
type EventSource struct {
	db       *DB
	pageSize int
	lastSeq  int64
	buf      []models.Event
	done     bool
}

// NewEventSource reads events after seq 0, pageSize rows per query
func (db *DB) NewEventSource(pageSize int) *EventSource {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &EventSource{db: db, pageSize: pageSize}
}

// Next returns the next stored event or io.EOF
func (s *EventSource) Next(ctx context.Context) (models.Event, error) {
	if len(s.buf) == 0 && !s.done {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	if len(s.buf) == 0 {
		return nil, io.EOF
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, nil
}

func (s *EventSource) fill(ctx context.Context) error {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT seq, kind, owner, symbol, COALESCE(side, ''), COALESCE(price::text, '')
		FROM events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, s.lastSeq, s.pageSize)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			seq                      int64
			kind, symbol, side, text string
			owner                    int64
		)
		if err := rows.Scan(&seq, &kind, &owner, &symbol, &side, &text); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := decodeEvent(kind, owner, symbol, side, text)
		if err != nil {
			return fmt.Errorf("event seq %d: %w", seq, err)
		}
		s.buf = append(s.buf, ev)
		s.lastSeq = seq
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	if n < s.pageSize {
		s.done = true
	}
	return nil
}

func decodeEvent(kind string, owner int64, symbol, side, price string) (models.Event, error) {
	var p decimal.Decimal
	if kind != "C" {
		var err error
		if p, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("bad price %q: %w", price, err)
		}
	}
	switch kind {
	case "N":
		s, err := models.ParseSide(side)
		if err != nil {
			return nil, err
		}
		return models.NewOrder{Owner: uint32(owner), Symbol: symbol, Side: s, Price: p}, nil
	case "M":
		return models.Modify{Owner: uint32(owner), Symbol: symbol, Price: p}, nil
	case "C":
		return models.Cancel{Owner: uint32(owner), Symbol: symbol}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

// SaveReport upserts the final participant counters
func (db *DB) SaveReport(ctx context.Context, participants []models.Participant) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(`
			INSERT INTO participants (id, live_orders, filled_orders, balance, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE
			SET live_orders = EXCLUDED.live_orders,
			    filled_orders = EXCLUDED.filled_orders,
			    balance = EXCLUDED.balance,
			    updated_at = EXCLUDED.updated_at
		`, int64(p.ID), p.LiveOrders, p.FilledOrders, p.Balance)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetParticipants returns the stored report in ascending id order
func (db *DB) GetParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, live_orders, filled_orders, balance::text FROM participants ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var (
			id      int64
			p       models.Participant
			balance string
		)
		if err := rows.Scan(&id, &p.LiveOrders, &p.FilledOrders, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.ID = uint32(id)
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("participant %d balance: %w", id, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveTrade inserts an executed trade
func (db *DB) SaveTrade(ctx context.Context, t models.Trade) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO trades (id, symbol, taker, maker, taker_side, price, amount, executed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		t.ID.String(), t.Symbol, int64(t.Taker), int64(t.Maker), string(rune(t.TakerSide)), t.Price, t.Amount, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// GetTrades returns stored trades, oldest first
func (db *DB) GetTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, symbol, taker, maker, taker_side, price::text, amount::text, executed_at
		FROM trades
		WHERE $1 = '' OR symbol = $1
		ORDER BY executed_at ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var (
			t             models.Trade
			id, side      string
			taker, maker  int64
			price, amount string
		)
		if err := rows.Scan(&id, &t.Symbol, &taker, &maker, &side, &price, &amount, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("trade id %q: %w", id, err)
		}
		if t.TakerSide, err = models.ParseSide(side); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		t.Taker, t.Maker = uint32(taker), uint32(maker)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CreateOperator inserts a reporting API account
func (db *DB) CreateOperator(ctx context.Context, username, passwordHash string) (*models.Operator, error) {
	op := &models.Operator{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO operators (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return op, nil
}

// GetOperatorByUsername retrieves an operator by username
func (db *DB) GetOperatorByUsername(ctx context.Context, username string) (*models.Operator, error) {
	op := &models.Operator{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM operators WHERE username = $1",
		username).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("operator %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return op, nil
}
