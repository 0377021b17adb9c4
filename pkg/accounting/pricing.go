// Package accounting records language-model token usage and cost.
package accounting

import (
	"sort"
	"strings"
)

// Price is the cost in dollars per 1K tokens.
type Price struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// DefaultModel is priced for any model name the table does not know.
const DefaultModel = "claude-3-5-sonnet"

// Pricing maps a model family prefix to its price.
var Pricing = map[string]Price{
	"claude-3-5-sonnet": {Input: 0.003, Output: 0.015},
	"claude-3-haiku":    {Input: 0.00025, Output: 0.00125},
	"gpt-4":             {Input: 0.03, Output: 0.06},
	"gpt-3.5-turbo":     {Input: 0.0015, Output: 0.002},
}

// PriceFor returns the price of the longest matching family prefix, so
// "gpt-4-0613" is priced as gpt-4 and dated releases as their family.
func PriceFor(model string) Price {
	name := strings.ToLower(model)
	keys := make([]string, 0, len(Pricing))
	for k := range Pricing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(name, k) {
			return Pricing[k]
		}
	}
	return Pricing[DefaultModel]
}

// Cost returns the dollar cost of one call.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p := PriceFor(model)
	return float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
}
