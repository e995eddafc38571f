package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tablebook/internal/model"
)

func tables(pairs ...any) []model.Table {
	var out []model.Table
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, model.Table{
			ID:           pairs[i].(string),
			Label:        pairs[i].(string),
			Capacity:     pairs[i+1].(int),
			IsActive:     true,
			IsReservable: true,
		})
	}
	return out
}

func ids(ts []model.Table) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name         string
		candidates   []model.Table
		party        int
		wantIDs      []string
		wantStrategy Strategy
	}{
		{
			name:         "exact fit wins over pair",
			candidates:   tables("A1", 2, "A2", 2, "A6", 6),
			party:        6,
			wantIDs:      []string{"A6"},
			wantStrategy: StrategyExact,
		},
		{
			name:         "exact fit picks first in catalog order",
			candidates:   tables("B2", 4, "B1", 4),
			party:        4,
			wantIDs:      []string{"B2"},
			wantStrategy: StrategyExact,
		},
		{
			name:         "smallest sufficient single",
			candidates:   tables("A8", 8, "A6", 6, "A2", 2),
			party:        5,
			wantIDs:      []string{"A6"},
			wantStrategy: StrategySingle,
		},
		{
			name:         "smallest sufficient single tie by catalog order",
			candidates:   tables("C6", 6, "A6", 6),
			party:        5,
			wantIDs:      []string{"C6"},
			wantStrategy: StrategySingle,
		},
		{
			name:         "pair of twos",
			candidates:   tables("A1", 2, "A2", 2),
			party:        4,
			wantIDs:      []string{"A1", "A2"},
			wantStrategy: StrategyCombination,
		},
		{
			name:         "minimal waste pair",
			candidates:   tables("A1", 2, "A2", 4, "A3", 3, "A4", 2),
			party:        5,
			wantIDs:      []string{"A1", "A3"},
			wantStrategy: StrategyCombination,
		},
		{
			name:         "triple only when no pair qualifies",
			candidates:   tables("A1", 2, "A2", 2, "A3", 2, "A4", 2),
			party:        6,
			wantIDs:      []string{"A1", "A2", "A3"},
			wantStrategy: StrategyCombination,
		},
		{
			name:         "party of one takes a two-top",
			candidates:   tables("A4", 4, "A2", 2),
			party:        1,
			wantIDs:      []string{"A2"},
			wantStrategy: StrategySingle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Assign(tt.candidates, tt.party)
			assert.True(t, res.Found())
			assert.Equal(t, tt.wantIDs, ids(res.Tables))
			assert.Equal(t, tt.wantStrategy, res.Strategy)
			assert.GreaterOrEqual(t, res.TotalCapacity(), tt.party)
		})
	}
}

func TestAssign_NoConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		candidates []model.Table
		party      int
	}{
		{"single small table", tables("A1", 2), 4},
		{"no candidates", nil, 2},
		{"four twos cannot seat nine", tables("A1", 2, "A2", 2, "A3", 2, "A4", 2), 9},
		{"zero party", tables("A1", 2), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Assign(tt.candidates, tt.party)
			assert.False(t, res.Found())
			assert.Equal(t, StrategyNone, res.Strategy)
			assert.Equal(t, "no suitable table configuration", res.Reason)
		})
	}
}

func TestAssign_NeverSkipsExactTable(t *testing.T) {
	pool := tables("A1", 2, "A2", 2, "A3", 3, "A4", 4, "A5", 5, "A6", 6, "A8", 8)
	for party := 1; party <= 8; party++ {
		res := Assign(pool, party)
		if !assert.True(t, res.Found(), "party %d", party) {
			continue
		}
		for _, tb := range pool {
			if tb.Capacity == party {
				assert.Len(t, res.Tables, 1, "party %d", party)
				assert.Equal(t, party, res.Tables[0].Capacity, "party %d", party)
			}
		}
	}
}

func TestAssignBounded_LargerK(t *testing.T) {
	pool := tables("A1", 2, "A2", 2, "A3", 2, "A4", 2)

	assert.False(t, Assign(pool, 8).Found())

	res := AssignBounded(pool, 8, 4)
	assert.True(t, res.Found())
	assert.Len(t, res.Tables, 4)
}
