package types

// CostInfo records what a single analysis call cost. Produced once per call,
// consumed exactly once by the cost ledger.
type CostInfo struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TokensUsed       int     `json:"tokens_used"`
	CostUSD          float64 `json:"cost_usd"`
	Success          bool    `json:"success"`
	Note             string  `json:"note,omitempty"`
}

// ZeroCost builds a successful zero-cost record. Mock and local tiers still
// record zero-cost usage for observability.
func ZeroCost(model, note string) CostInfo {
	return CostInfo{
		Model:   model,
		Success: true,
		Note:    note,
	}
}

// FailedCost builds a zero-cost record marking a tried-and-failed call,
// distinguishing it from "we chose not to call".
func FailedCost(model, note string) CostInfo {
	return CostInfo{
		Model:   model,
		Success: false,
		Note:    note,
	}
}
