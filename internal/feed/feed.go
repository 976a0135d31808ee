// Package feed reads order events from text streams.
//
// One event per line, fields separated by whitespace:
//
//	N <owner> <symbol> <B|S> <price>
//	M <owner> <symbol> <price>
//	C <owner> <symbol>
//
// Blank lines and lines starting with '#' are skipped.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/matchcore/internal/models"
)

// Source yields events in order and returns io.EOF when exhausted
type Source interface {
	Next(ctx context.Context) (models.Event, error)
}

// ErrMalformed marks input that is not a valid event line
var ErrMalformed = errors.New("malformed event")

// LineError reports where a malformed event was found
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseLine parses a single event line
func ParseLine(line string) (models.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	want := map[string]int{"N": 5, "M": 4, "C": 3}[fields[0]]
	if want == 0 {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformed, fields[0])
	}
	if len(fields) != want {
		return nil, fmt.Errorf("%w: %s takes %d fields, got %d", ErrMalformed, fields[0], want, len(fields))
	}

	owner, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: owner %q: %v", ErrMalformed, fields[1], err)
	}
	symbol := fields[2]

	switch fields[0] {
	case "N":
		side, err := models.ParseSide(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		price, err := parsePrice(fields[4])
		if err != nil {
			return nil, err
		}
		return models.NewOrder{Owner: uint32(owner), Symbol: symbol, Side: side, Price: price}, nil
	case "M":
		price, err := parsePrice(fields[3])
		if err != nil {
			return nil, err
		}
		return models.Modify{Owner: uint32(owner), Symbol: symbol, Price: price}, nil
	default:
		return models.Cancel{Owner: uint32(owner), Symbol: symbol}, nil
	}
}

func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q: %v", ErrMalformed, s, err)
	}
	return p, nil
}

// Format renders an event in the line format ParseLine reads
func Format(ev models.Event) string {
	return fmt.Sprint(ev)
}

// ReaderSource yields events parsed from a line-oriented reader
type ReaderSource struct {
	scanner *bufio.Scanner
	line    int
	closer  io.Closer
}

// NewReaderSource reads events from r
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{scanner: bufio.NewScanner(r)}
}

// OpenFile reads events from the file at path. Close releases the file.
func OpenFile(path string) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	src := NewReaderSource(f)
	src.closer = f
	return src, nil
}

// Next returns the next event or io.EOF
func (s *ReaderSource) Next(ctx context.Context) (models.Event, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := ParseLine(text)
		if err != nil {
			return nil, &LineError{Line: s.line, Text: text, Err: err}
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return nil, io.EOF
}

// Close closes the underlying file, if any
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SliceSource yields a fixed list of events
type SliceSource struct {
	events []models.Event
	pos    int
}

// NewSliceSource serves events in the given order
func NewSliceSource(events ...models.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF
func (s *SliceSource) Next(ctx context.Context) (models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// ReadAll drains src into a slice
func ReadAll(ctx context.Context, src Source) ([]models.Event, error) {
	var out []models.Event
	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
