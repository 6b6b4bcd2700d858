package tokenizer

// Tokenizer counts tokens in a text string.
type Tokenizer interface {
	CountTokens(text string) int
}

// Estimator provides character-ratio token estimation when no exact
// encoding is available. CJK runes average fewer characters per token than
// Latin text.
type Estimator struct{}

// NewEstimator creates an Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// CountTokens estimates tokens in text.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjk++
		} else {
			other++
		}
	}
	tokens := float64(cjk)/1.5 + float64(other)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}
