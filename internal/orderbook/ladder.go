package orderbook

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

// Ladders are best-first slices. Once published in a book they are never
// written again; every mutation works on a clone.

func buildLadder(side Side, levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if l.Size.IsZero() {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Level) int {
		c := a.Price.Cmp(b.Price)
		if side == Bid {
			return -c
		}
		return c
	})
	return out
}

// search returns the index of price in levels, or where it would be inserted.
func search(side Side, levels []Level, price decimal.Decimal) (int, bool) {
	i := sort.Search(len(levels), func(i int) bool {
		return !side.better(levels[i].Price, price)
	})
	return i, i < len(levels) && levels[i].Price.Equal(price)
}

// applyChanges returns a new ladder with the changes for side applied, or the
// input slice itself when no change touches side.
func applyChanges(side Side, levels []Level, changes []Change) []Level {
	var out []Level
	for _, c := range changes {
		if c.Side != side {
			continue
		}
		if out == nil {
			out = make([]Level, len(levels), len(levels)+len(changes))
			copy(out, levels)
		}
		i, found := search(side, out, c.Price)
		switch {
		case c.Size.IsZero():
			if found {
				out = slices.Delete(out, i, i+1)
			}
		case found:
			out[i].Size = c.Size
		default:
			out = slices.Insert(out, i, Level{Price: c.Price, Size: c.Size})
		}
	}
	if out == nil {
		return levels
	}
	return out
}

// top copies at most depth levels; depth <= 0 copies everything.
func top(levels []Level, depth int) []Level {
	n := len(levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]Level, n)
	copy(out, levels[:n])
	return out
}
