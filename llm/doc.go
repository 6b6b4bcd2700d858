// Package llm provides the chat-completion client consumed by the LLM
// workflow node: a small interface, an OpenAI-compatible HTTP
// implementation with SSE streaming, and a static client for offline use.
package llm
