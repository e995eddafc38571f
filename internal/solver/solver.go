// Package solver picks the table configuration for a party.
package solver

import (
	"sort"

	"tablebook/internal/model"
)

// MaxCombinationSize bounds how many tables may be merged for one party.
// The search below works for any k; this constant is the policy limit.
const MaxCombinationSize = 3

// ReasonNoConfiguration is reported when nothing fits.
const ReasonNoConfiguration = "no suitable table configuration"

// Strategy names the rule that produced a result.
type Strategy string

const (
	StrategyExact       Strategy = "exact"
	StrategySingle      Strategy = "single"
	StrategyCombination Strategy = "combination"
	StrategyNone        Strategy = "none"
)

// Result is the solver outcome.
type Result struct {
	Tables   []model.Table
	Strategy Strategy
	Reason   string
}

// Found reports whether a configuration was chosen.
func (r Result) Found() bool {
	return len(r.Tables) > 0
}

// TotalCapacity sums the capacity of the chosen tables.
func (r Result) TotalCapacity() int {
	return totalCapacity(r.Tables)
}

// Assign chooses tables for partySize from candidates.
// Candidates must already be filtered to bookable, uncommitted tables and be in catalog order.
func Assign(candidates []model.Table, partySize int) Result {
	return AssignBounded(candidates, partySize, MaxCombinationSize)
}

// AssignBounded is Assign with an explicit combination bound.
func AssignBounded(candidates []model.Table, partySize, maxTables int) Result {
	if partySize < 1 || len(candidates) == 0 {
		return noResult()
	}

	// 1. Exact fit.
	for _, t := range candidates {
		if t.Capacity == partySize {
			return Result{Tables: []model.Table{t}, Strategy: StrategyExact}
		}
	}

	// 2. Smallest sufficient single table, ties by catalog order.
	best := -1
	for i, t := range candidates {
		if t.Capacity < partySize {
			continue
		}
		if best < 0 || t.Capacity < candidates[best].Capacity {
			best = i
		}
	}
	if best >= 0 {
		return Result{Tables: []model.Table{candidates[best]}, Strategy: StrategySingle}
	}

	// 3+. Minimal-waste combinations of growing size.
	sorted := make([]model.Table, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Capacity < sorted[j].Capacity
	})

	for k := 2; k <= maxTables && k <= len(sorted); k++ {
		if combo := minimalCombination(sorted, partySize, k); combo != nil {
			return Result{Tables: combo, Strategy: StrategyCombination}
		}
	}

	return noResult()
}

// minimalCombination enumerates k-combinations of sorted in lexicographic index order
// and keeps the first one with the smallest total capacity >= partySize.
func minimalCombination(sorted []model.Table, partySize, k int) []model.Table {
	var (
		bestIdx []int
		bestSum = -1
		idx     = make([]int, 0, k)
	)

	var walk func(from, sum int)
	walk = func(from, sum int) {
		if len(idx) == k {
			if sum >= partySize && (bestSum < 0 || sum < bestSum) {
				bestSum = sum
				bestIdx = append(bestIdx[:0], idx...)
			}
			return
		}
		for i := from; i <= len(sorted)-(k-len(idx)); i++ {
			idx = append(idx, i)
			walk(i+1, sum+sorted[i].Capacity)
			idx = idx[:len(idx)-1]
		}
	}
	walk(0, 0)

	if bestIdx == nil {
		return nil
	}
	out := make([]model.Table, len(bestIdx))
	for i, j := range bestIdx {
		out[i] = sorted[j]
	}
	return out
}

func noResult() Result {
	return Result{Strategy: StrategyNone, Reason: ReasonNoConfiguration}
}

func totalCapacity(tables []model.Table) int {
	sum := 0
	for _, t := range tables {
		sum += t.Capacity
	}
	return sum
}
