package knapsack

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"discback/internal/services"
)

// Strategy names one of the greedy fit heuristics.
type Strategy string

const (
	First     Strategy = "first"
	Best      Strategy = "best"
	Worst     Strategy = "worst"
	Alternate Strategy = "alternate"
)

// Strategies lists every supported heuristic in display order.
var Strategies = []Strategy{First, Best, Worst, Alternate}

// ParseStrategy accepts a strategy name, case-insensitively, with or without a
// "-fit" suffix.
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.TrimSuffix(strings.TrimSuffix(normalized, "fit"), "-")
	candidate := Strategy(normalized)
	if slices.Contains(Strategies, candidate) {
		return candidate, nil
	}
	return "", services.Wrap(services.ErrInvalidArgument, "knapsack", "parse strategy", fmt.Sprintf("unknown strategy %q", name), nil)
}

// Item is one candidate with its cost in bytes.
type Item struct {
	Key  string
	Size int64
}

// Result is the outcome of a selection. Chosen is in pick order and Used is
// the sum of the chosen sizes.
type Result struct {
	Chosen []string
	Used   int64
}

// Select runs the named heuristic over items. The map is never modified.
func Select(items map[string]int64, capacity int64, strategy Strategy) (Result, error) {
	if capacity < 0 {
		return Result{}, services.Wrap(services.ErrInvalidArgument, "knapsack", "select", fmt.Sprintf("negative capacity %d", capacity), nil)
	}
	switch strategy {
	case First:
		return FirstFit(items, capacity), nil
	case Best:
		return BestFit(items, capacity), nil
	case Worst:
		return WorstFit(items, capacity), nil
	case Alternate:
		return AlternateFit(items, capacity), nil
	default:
		return Result{}, services.Wrap(services.ErrInvalidArgument, "knapsack", "select", fmt.Sprintf("unknown strategy %q", strategy), nil)
	}
}

// FirstFit scans items in key order and keeps each one that still fits.
func FirstFit(items map[string]int64, capacity int64) Result {
	return scan(sortedByKey(items), capacity)
}

// BestFit repeatedly takes the largest item that still fits, leaving the
// least room after each pick. Equal sizes are taken in key order.
func BestFit(items map[string]int64, capacity int64) Result {
	sorted := sortedByKey(items)
	slices.SortStableFunc(sorted, func(a, b Item) int { return cmp.Compare(b.Size, a.Size) })
	return scan(sorted, capacity)
}

// WorstFit repeatedly takes the smallest item that still fits, leaving the
// most room after each pick. Equal sizes are taken in key order.
func WorstFit(items map[string]int64, capacity int64) Result {
	return scan(sortedBySize(items), capacity)
}

// AlternateFit alternates a best-fit pick with a worst-fit pick, starting with
// best-fit. When the side whose turn it is has nothing left that fits, the
// other side picks instead.
func AlternateFit(items map[string]int64, capacity int64) Result {
	if capacity <= 0 || len(items) == 0 {
		return Result{}
	}
	sorted := sortedBySize(items)
	res := Result{Chosen: make([]string, 0, len(sorted))}
	lo, hi := 0, len(sorted)-1
	remaining := capacity
	bestTurn := true

	// Items above hi are either chosen or too large for any later remaining
	// capacity, so hi only moves down. lo only moves up for the same reason.
	pickBest := func() bool {
		for hi >= lo && sorted[hi].Size > remaining {
			hi--
		}
		if hi < lo {
			return false
		}
		res.Chosen = append(res.Chosen, sorted[hi].Key)
		res.Used += sorted[hi].Size
		remaining -= sorted[hi].Size
		hi--
		return true
	}
	pickWorst := func() bool {
		if lo > hi || sorted[lo].Size > remaining {
			return false
		}
		res.Chosen = append(res.Chosen, sorted[lo].Key)
		res.Used += sorted[lo].Size
		remaining -= sorted[lo].Size
		lo++
		return true
	}

	for lo <= hi {
		var picked bool
		if bestTurn {
			picked = pickBest() || pickWorst()
		} else {
			picked = pickWorst() || pickBest()
		}
		if !picked {
			break
		}
		bestTurn = !bestTurn
	}
	return res
}

// scan takes items in the given order, keeping each one that fits. Once the
// capacity is exactly consumed only zero-size items can still be taken.
func scan(ordered []Item, capacity int64) Result {
	if capacity <= 0 || len(ordered) == 0 {
		return Result{}
	}
	res := Result{Chosen: make([]string, 0, len(ordered))}
	remaining := capacity
	for _, item := range ordered {
		if item.Size > remaining {
			continue
		}
		res.Chosen = append(res.Chosen, item.Key)
		res.Used += item.Size
		remaining -= item.Size
	}
	return res
}

func sortedByKey(items map[string]int64) []Item {
	keys := slices.Sorted(maps.Keys(items))
	out := make([]Item, 0, len(keys))
	for _, key := range keys {
		size := items[key]
		if size < 0 {
			size = 0
		}
		out = append(out, Item{Key: key, Size: size})
	}
	return out
}

func sortedBySize(items map[string]int64) []Item {
	sorted := sortedByKey(items)
	slices.SortStableFunc(sorted, func(a, b Item) int { return cmp.Compare(a.Size, b.Size) })
	return sorted
}

// Total sums the sizes of the given keys, ignoring keys absent from items.
func Total(items map[string]int64, keys []string) int64 {
	var total int64
	for _, key := range keys {
		total += items[key]
	}
	return total
}
