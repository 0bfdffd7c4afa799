package cost

const (
	CurrencyUSD = "USD"

	perMillion = 1_000_000
)

// Estimate is the approximate spend for a token count.
type Estimate struct {
	Input    float64
	Output   float64
	Total    float64
	Currency string
	// Known is false when the model has no price; the amounts are zero then.
	Known bool
}

// Calculator prices token usage. Overrides take precedence over the
// built-in table.
type Calculator struct {
	overrides map[string]TokenPrice
}

func NewCalculator(overrides *LocalPricing) *Calculator {
	c := &Calculator{overrides: map[string]TokenPrice{}}
	if overrides != nil {
		for model, p := range overrides.Models {
			c.overrides[model] = p
		}
	}
	return c
}

func (c *Calculator) Price(model string) (TokenPrice, bool) {
	if p, ok := c.overrides[model]; ok {
		return p, true
	}
	return GetGeminiPrice(model)
}

func (c *Calculator) Calculate(model string, promptTokens, outputTokens int) *Estimate {
	price, ok := c.Price(model)
	if !ok {
		return &Estimate{Currency: CurrencyUSD}
	}

	in := float64(promptTokens) / perMillion * price.Input
	out := float64(outputTokens) / perMillion * price.Output
	return &Estimate{
		Input:    in,
		Output:   out,
		Total:    in + out,
		Currency: CurrencyUSD,
		Known:    true,
	}
}
