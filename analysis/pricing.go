package analysis

import "github.com/evandepol/homewatch/types"

// FallbackModel is the pricing entry used when the active model is unknown.
const FallbackModel = "gpt-4o-mini"

// NoAccountingNote marks a zero-cost result from a tier that reports no
// token usage, as opposed to a true zero-cost call.
const NoAccountingNote = "no-accounting-tier"

// Pricing is per-1k-token pricing for one model.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PricingTable maps model identifiers to pricing.
type PricingTable map[string]Pricing

// DefaultPricing covers the stock online models.
func DefaultPricing() PricingTable {
	return PricingTable{
		"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	}
}

// Cost computes a call's CostInfo from token usage. A model missing from the
// table falls back to the FallbackModel entry.
func (t PricingTable) Cost(model string, promptTokens, completionTokens, totalTokens int) types.CostInfo {
	pricing, ok := t[model]
	if !ok {
		pricing = t[FallbackModel]
	}

	inputCost := float64(promptTokens) / 1000 * pricing.InputPer1K
	outputCost := float64(completionTokens) / 1000 * pricing.OutputPer1K

	return types.CostInfo{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TokensUsed:       totalTokens,
		CostUSD:          inputCost + outputCost,
		Success:          true,
	}
}

// NoUsageCost reports a zero-cost call from a tier without token accounting.
func NoUsageCost(model string) types.CostInfo {
	return types.ZeroCost(model, NoAccountingNote)
}
