// Package tokenizer counts tokens for usage accounting. The tiktoken
// implementation covers OpenAI-family encodings; the estimator is the
// fallback for unknown models.
package tokenizer
