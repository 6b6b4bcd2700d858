package types

// NodeUsage is one entry of the per-run billing ledger. Entries are
// append-only; a node may report several (e.g. embedding + rerank).
type NodeUsage struct {
	NodeID       string  `json:"node_id"`
	NodeName     string  `json:"node_name"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	TotalPoints  float64 `json:"total_points"`
}

// TotalTokens returns the combined token count of the entry.
func (u NodeUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// SumUsages folds a usage list into total tokens and points.
func SumUsages(usages []NodeUsage) (tokens int, points float64) {
	for _, u := range usages {
		tokens += u.TotalTokens()
		points += u.TotalPoints
	}
	return tokens, points
}
