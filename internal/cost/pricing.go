package cost

// Gemini API list prices in USD per 1M tokens, standard tier, prompts up
// to 200k tokens.
// Source: https://ai.google.dev/gemini-api/docs/pricing

// TokenPrice is what one million tokens cost in each direction.
type TokenPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

var geminiPricing = map[string]TokenPrice{
	"gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
	"gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
	"gemini-2.5-flash-lite": {Input: 0.10, Output: 0.40},
	"gemini-2.0-flash":      {Input: 0.10, Output: 0.40},
}

func GetGeminiPrice(model string) (TokenPrice, bool) {
	price, ok := geminiPricing[model]
	return price, ok
}
