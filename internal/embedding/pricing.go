package embedding

// pricePer1K is the USD price per 1,000 input tokens.
var pricePer1K = map[string]float64{
	"text-embedding-3-small": 0.00002,
	"text-embedding-3-large": 0.00013,
	"text-embedding-ada-002": 0.0001,
}

// CostFor estimates the cost of embedding tokens with model.
// Unknown and self-hosted models cost nothing.
func CostFor(model string, tokens int) float64 {
	rate, ok := pricePer1K[model]
	if !ok || tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * rate
}

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += (len(t) + 3) / 4
	}
	return total
}
