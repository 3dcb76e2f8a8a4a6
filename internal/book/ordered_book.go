package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// OrderedBook holds one side-pair of priced levels for a symbol, backed by
// a generic in-memory B-tree per side. Bids are kept in a tree whose
// less-function is negated (greater-price-first); asks use the natural
// ascending comparison. Negating the comparator — never the stored price —
// keeps price values exact decimals throughout.
type OrderedBook struct {
	bids *btree.BTreeG[PriceLevel]
	asks *btree.BTreeG[PriceLevel]
}

// NewOrderedBook returns an empty book ready for snapshot or incremental
// application.
func NewOrderedBook() *OrderedBook {
	return &OrderedBook{
		bids: btree.NewBTreeG(func(a, b PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}),
		asks: btree.NewBTreeG(func(a, b PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

func (b *OrderedBook) treeFor(side Side) *btree.BTreeG[PriceLevel] {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Apply upserts or deletes a price level. newSize == 0 removes the price if
// present (idempotent); newSize > 0 inserts or overwrites. O(log N).
func (b *OrderedBook) Apply(side Side, price, newSize decimal.Decimal) {
	tree := b.treeFor(side)
	key := PriceLevel{Price: price}
	if newSize.IsZero() {
		tree.Delete(key)
		return
	}
	tree.Set(PriceLevel{Price: price, Size: newSize})
}

// Best returns the best resting level on the given side. It is not cached:
// each call walks the tree's leftmost path, O(log N).
func (b *OrderedBook) Best(side Side) (PriceLevel, bool) {
	return b.treeFor(side).Min()
}

// TopN returns up to n levels on the given side in side-sort order. O(n).
func (b *OrderedBook) TopN(side Side, n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	b.treeFor(side).Scan(func(item PriceLevel) bool {
		levels = append(levels, item)
		return len(levels) < n
	})
	return levels
}

// SumVolume sums the size of up to maxLevels levels on the given side.
// Monotonically non-decreasing in maxLevels.
func (b *OrderedBook) SumVolume(side Side, maxLevels int) decimal.Decimal {
	total := decimal.Zero
	if maxLevels <= 0 {
		return total
	}
	count := 0
	b.treeFor(side).Scan(func(item PriceLevel) bool {
		total = total.Add(item.Size)
		count++
		return count < maxLevels
	})
	return total
}

// Len returns the number of resting price levels on the given side.
func (b *OrderedBook) Len(side Side) int {
	return b.treeFor(side).Len()
}

// Iter returns a pull-style iterator over the given side in sort order. The
// returned func yields (level, true) for each level in turn and (_, false)
// once exhausted; it is backed by a single Scan snapshot taken at call
// time, so it reflects the book as of that instant rather than tracking
// later mutations.
func (b *OrderedBook) Iter(side Side) func() (PriceLevel, bool) {
	levels := make([]PriceLevel, 0, b.Len(side))
	b.treeFor(side).Scan(func(item PriceLevel) bool {
		levels = append(levels, item)
		return true
	})
	i := 0
	return func() (PriceLevel, bool) {
		if i >= len(levels) {
			return PriceLevel{}, false
		}
		level := levels[i]
		i++
		return level, true
	}
}

// HasPrice reports whether a price is currently resting on the given side.
func (b *OrderedBook) HasPrice(side Side, price decimal.Decimal) bool {
	_, ok := b.treeFor(side).Get(PriceLevel{Price: price})
	return ok
}

// Snapshot copies the full side into a slice in sort order, used by the
// SnapshotWriter's Full mode and by round-trip equality checks.
func (b *OrderedBook) Snapshot(side Side) []PriceLevel {
	return b.TopN(side, b.Len(side))
}
