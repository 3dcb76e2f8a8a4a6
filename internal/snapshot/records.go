package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"lobstream/internal/book"
	"lobstream/internal/statemachine"
	"lobstream/internal/stats"
)

// FullRecord persists the entire book, sides in sort order.
type FullRecord struct {
	Timestamp string     `json:"timestamp"`
	Symbol    string     `json:"symbol"`
	Sequence  int64      `json:"sequence"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
}

// LightRecord persists only a top-of-book summary.
type LightRecord struct {
	T  string `json:"t"`
	P  string `json:"p"`
	S  int64  `json:"s"`
	BB string `json:"bb"`
	BA string `json:"ba"`
	SP string `json:"sp"`
	MP string `json:"mp"`
	IB string `json:"ib"`
}

func pairs(levels []book.PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, lvl := range levels {
		out[i] = [2]string{lvl.Price.String(), lvl.Size.String()}
	}
	return out
}

// BuildFullRecord converts a reconstructed Book into its Full persisted
// shape.
func BuildFullRecord(b *statemachine.Book) FullRecord {
	return FullRecord{
		Timestamp: b.Timestamp.UTC().Format(time.RFC3339),
		Symbol:    b.Symbol,
		Sequence:  b.Sequence,
		Bids:      pairs(b.Sides.Snapshot(book.Bid)),
		Asks:      pairs(b.Sides.Snapshot(book.Ask)),
	}
}

// LoadSnapshot reads a Full-mode Writer's gzip-compressed, append-only file
// at path and reconstructs the Book described by its most recently appended
// FullRecord — the inverse of BuildFullRecord. Each flush is its own gzip
// member, so members are decompressed one at a time until the buffer is
// exhausted.
func LoadSnapshot(path string) (*statemachine.Book, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}

	var lines [][]byte
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, &PersistenceError{Path: path, Err: err}
		}
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			lines = append(lines, append([]byte(nil), scanner.Bytes()...))
		}
		scanErr := scanner.Err()
		gz.Close()
		if scanErr != nil {
			return nil, &PersistenceError{Path: path, Err: scanErr}
		}
	}
	if len(lines) == 0 {
		return nil, &PersistenceError{Path: path, Err: fmt.Errorf("no records in %s", path)}
	}

	var rec FullRecord
	if err := json.Unmarshal(lines[len(lines)-1], &rec); err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	return rec.toBook()
}

// toBook reconstructs a statemachine.Book from a decoded FullRecord.
func (rec FullRecord) toBook() (*statemachine.Book, error) {
	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", rec.Timestamp, err)
	}

	sides := book.NewOrderedBook()
	if err := applyPairs(sides, book.Bid, rec.Bids); err != nil {
		return nil, err
	}
	if err := applyPairs(sides, book.Ask, rec.Asks); err != nil {
		return nil, err
	}

	return &statemachine.Book{
		Symbol:    rec.Symbol,
		Sequence:  rec.Sequence,
		Timestamp: ts,
		Sides:     sides,
		Mode:      statemachine.Full,
	}, nil
}

func applyPairs(ob *book.OrderedBook, side book.Side, levels [][2]string) error {
	for _, pair := range levels {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return fmt.Errorf("parse size %q: %w", pair[1], err)
		}
		ob.Apply(side, price, size)
	}
	return nil
}

// BuildLightRecord converts a Book + its computed Statistics into the Light
// persisted shape.
func BuildLightRecord(b *statemachine.Book, s stats.Statistics) LightRecord {
	rec := LightRecord{
		T: b.Timestamp.UTC().Format(time.RFC3339),
		P: b.Symbol,
		S: b.Sequence,
	}
	if s.HasBid {
		rec.BB = s.BestBid.String()
	}
	if s.HasAsk {
		rec.BA = s.BestAsk.String()
	}
	if s.HasSpread {
		rec.SP = s.Spread.String()
	}
	if s.HasMid {
		rec.MP = s.MidPrice.String()
	}
	if s.HasImbalance {
		rec.IB = s.ImbalanceTopN.String()
	}
	return rec
}
