package models

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// Greeks contains option price sensitivities.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// RawContract is one option contract as delivered by the market-data layer.
type RawContract struct {
	Symbol         string  `json:"symbol"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"` // YYYY-MM-DD
	Strike         float64 `json:"strike"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	IV             float64 `json:"iv"`
	Greeks         *Greeks `json:"greeks,omitempty"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
}

// OptionQuote is a normalized option contract.
type OptionQuote struct {
	Symbol       string     `json:"symbol"`
	Type         OptionType `json:"type"`
	Strike       float64    `json:"strike"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Mid          float64    `json:"mid"`
	IV           float64    `json:"iv"`
	Greeks       Greeks     `json:"greeks"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	Expiration   string     `json:"expiration"`
	DTE          int        `json:"dte"`
}

// OptionsChain holds strike-ascending calls and puts for one expiration window.
type OptionsChain struct {
	Calls []OptionQuote `json:"calls"`
	Puts  []OptionQuote `json:"puts"`
}

// Side returns the quotes for the given option type.
func (c *OptionsChain) Side(t OptionType) []OptionQuote {
	if c == nil {
		return nil
	}
	if t == OptionTypeCall {
		return c.Calls
	}
	return c.Puts
}

// Empty reports whether the chain carries no contracts.
func (c *OptionsChain) Empty() bool {
	return c == nil || (len(c.Calls) == 0 && len(c.Puts) == 0)
}
