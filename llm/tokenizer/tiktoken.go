package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// model encodings map model name prefixes to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Tiktoken counts tokens with the exact encoding of a model, initialized
// lazily. Unknown models fall back to cl100k_base; encoding load failures
// fall back to the estimator so usage accounting never errors.
type Tiktoken struct {
	model string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *Estimator
}

// NewTiktoken creates a tokenizer for the given model.
func NewTiktoken(model string) *Tiktoken {
	return &Tiktoken{model: model, fallback: NewEstimator()}
}

func (t *Tiktoken) init() {
	encoding := "cl100k_base"
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(t.model, prefix) {
			encoding = enc
			break
		}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err == nil {
		t.enc = enc
	}
}

// CountTokens counts tokens in text.
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(t.init)
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
