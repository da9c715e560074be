package embedding

import "testing"

func TestCostFor(t *testing.T) {
	tests := []struct {
		model  string
		tokens int
		want   float64
	}{
		{"text-embedding-3-small", 1000, 0.00002},
		{"text-embedding-3-large", 2000, 0.00026},
		{"text-embedding-ada-002", 500, 0.00005},
		{"nomic-embed-text", 1000, 0},
		{"text-embedding-3-small", 0, 0},
	}
	for _, tt := range tests {
		got := CostFor(tt.model, tt.tokens)
		if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("CostFor(%s, %d) = %v, want %v", tt.model, tt.tokens, got, tt.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   []string
		want int
	}{
		{nil, 0},
		{[]string{""}, 0},
		{[]string{"a"}, 1},
		{[]string{"abcd"}, 1},
		{[]string{"abcde"}, 2},
		{[]string{"abcd", "abcdefgh"}, 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
