package tripflow

type TokenRates struct {
	Input  float64
	Output float64
}

// Pricing constants in dollars per million tokens.
const (
	GPT4oInputRate      = 2.5
	GPT4oOutputRate     = 10.0
	GPT4oMiniInputRate  = 0.15
	GPT4oMiniOutputRate = 0.60
	O3MiniInputRate     = 1.10
	O3MiniOutputRate    = 4.40
)

// ModelPricings is a map of model names to their pricing information
var ModelPricings = map[string]TokenRates{
	"gpt-4o": {
		Input:  GPT4oInputRate,
		Output: GPT4oOutputRate,
	},
	"gpt-4o-mini": {
		Input:  GPT4oMiniInputRate,
		Output: GPT4oMiniOutputRate,
	},
	"o3-mini": {
		Input:  O3MiniInputRate,
		Output: O3MiniOutputRate,
	},
	"azure/gpt-4o": {
		Input:  GPT4oInputRate,
		Output: GPT4oOutputRate,
	},
	"azure/gpt-4o-mini": {
		Input:  GPT4oMiniInputRate,
		Output: GPT4oMiniOutputRate,
	},
}

// CostDetails represents detailed cost information for an exchange.
type CostDetails struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// EstimateCost converts token counts to dollars for a known model. The
// second return is false when the model has no pricing entry.
func EstimateCost(model string, inputTokens, outputTokens int64) (*CostDetails, bool) {
	pricing, exists := ModelPricings[model]
	if !exists {
		return nil, false
	}

	inputCost := float64(inputTokens) * pricing.Input / 1000000
	outputCost := float64(outputTokens) * pricing.Output / 1000000

	return &CostDetails{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalCost:    inputCost + outputCost,
	}, true
}
